package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Bucket names for the two key namespaces.
const (
	lockBucket  = "scrape_locks"
	cacheBucket = "auction_cache"
)

// NATSStore implements SharedStore on NATS JetStream KeyValue buckets, one
// bucket per key namespace. kv.Create is the atomic set-if-absent primitive;
// the bucket-level TTL is the crash safety net, so the per-call TTL argument
// is accepted but not applied per key.
type NATSStore struct {
	nc      *nats.Conn
	ownConn bool
	buckets map[string]nats.KeyValue
}

// NATSStoreConfig sizes the two buckets.
type NATSStoreConfig struct {
	// LockTTL expires abandoned lock keys.
	LockTTL time.Duration
	// CacheBackstop expires cache entries that were never swept. It should
	// comfortably exceed the snapshot TTL so deliberately-stale reads remain
	// possible; entry-level freshness lives in the entry payload, not here.
	CacheBackstop time.Duration
	// MemoryStorage selects in-memory bucket storage (embedded/dev servers).
	MemoryStorage bool
}

// NewNATSStore connects to the given NATS URL and prepares both buckets.
func NewNATSStore(natsURL string, cfg NATSStoreConfig) (*NATSStore, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s, err := NewNATSStoreWithConn(nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.ownConn = true
	return s, nil
}

// NewNATSStoreWithConn builds a store over an existing connection, which the
// caller keeps ownership of.
func NewNATSStoreWithConn(nc *nats.Conn, cfg NATSStoreConfig) (*NATSStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	storage := nats.FileStorage
	if cfg.MemoryStorage {
		storage = nats.MemoryStorage
	}

	buckets := make(map[string]nats.KeyValue, 2)
	for bucket, ttl := range map[string]time.Duration{
		lockBucket:  cfg.LockTTL,
		cacheBucket: cfg.CacheBackstop,
	} {
		kv, err := js.KeyValue(bucket)
		if errors.Is(err, nats.ErrBucketNotFound) {
			kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
				Bucket:  bucket,
				TTL:     ttl,
				Storage: storage,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open KV bucket %s: %w", bucket, err)
		}
		buckets[bucket] = kv
	}

	return &NATSStore{nc: nc, buckets: buckets}, nil
}

// route picks the bucket for a namespaced key and strips the prefix, since
// ':' is not a legal NATS KV key character.
func (s *NATSStore) route(key string) (nats.KeyValue, string, error) {
	switch {
	case strings.HasPrefix(key, LockPrefix):
		return s.buckets[lockBucket], strings.TrimPrefix(key, LockPrefix), nil
	case strings.HasPrefix(key, CachePrefix):
		return s.buckets[cacheBucket], strings.TrimPrefix(key, CachePrefix), nil
	}
	return nil, "", fmt.Errorf("key %q is outside the known namespaces", key)
}

func (s *NATSStore) SetIfAbsent(ctx context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	kv, k, err := s.route(key)
	if err != nil {
		return false, err
	}

	_, err = kv.Create(k, value)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, nats.ErrKeyExists) {
		return false, nil
	}
	return false, fmt.Errorf("kv create %s: %w", key, err)
}

func (s *NATSStore) Exists(ctx context.Context, key string) (bool, error) {
	kv, k, err := s.route(key)
	if err != nil {
		return false, err
	}

	_, err = kv.Get(k)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
		return false, nil
	}
	return false, fmt.Errorf("kv get %s: %w", key, err)
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	kv, k, err := s.route(key)
	if err != nil {
		return err
	}

	if err := kv.Purge(k); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("kv purge %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	kv, k, err := s.route(key)
	if err != nil {
		return false, err
	}

	entry, err := kv.Get(k)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return false, nil
		}
		return false, fmt.Errorf("kv get %s: %w", key, err)
	}

	if err := json.Unmarshal(entry.Value(), v); err != nil {
		return false, fmt.Errorf("kv decode %s: %w", key, err)
	}
	return true, nil
}

func (s *NATSStore) SetJSON(ctx context.Context, key string, v any, _ time.Duration) error {
	kv, k, err := s.route(key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv encode %s: %w", key, err)
	}
	if _, err := kv.Put(k, data); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var bucket, restore string
	switch prefix {
	case LockPrefix:
		bucket, restore = lockBucket, LockPrefix
	case CachePrefix:
		bucket, restore = cacheBucket, CachePrefix
	default:
		return nil, fmt.Errorf("prefix %q is outside the known namespaces", prefix)
	}

	keys, err := s.buckets[bucket].Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", bucket, err)
	}

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = restore + k
	}
	return out, nil
}

func (s *NATSStore) Close() error {
	if s.ownConn && s.nc != nil {
		s.nc.Close()
	}
	return nil
}
