package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/pubsub"
	"github.com/couchgm/auctionwatch/internal/service"
)

// APIHandlers contains all API handler methods
type APIHandlers struct {
	svc    *service.Service
	pubsub *pubsub.PubSub
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(svc *service.Service) *APIHandlers {
	return &APIHandlers{
		svc:    svc,
		pubsub: svc.Events(),
	}
}

// GetAuction returns the room's auction snapshot, scraping when the cache is
// stale. ?refresh=true forces a fresh scrape.
func (h *APIHandlers) GetAuction(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	refresh := r.URL.Query().Get("refresh") == "true"

	logger.Debug("Getting auction state", "room_id", roomID, "refresh", refresh)
	entry, err := h.svc.GetAuction(r.Context(), roomID, refresh)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"snapshot":  entry.Snapshot,
		"fetchedAt": entry.FetchedAt,
		"expiresAt": entry.ExpiresAt,
	})
}

// SyncAuction runs the full pipeline: fetch, match, valuate.
func (h *APIHandlers) SyncAuction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RoomID       string `json:"roomId"`
		ForceRefresh bool   `json:"forceRefresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to decode sync request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Info("Syncing auction", "room_id", req.RoomID, "force_refresh", req.ForceRefresh)
	result, err := h.svc.SyncAndValue(r.Context(), req.RoomID, req.ForceRefresh)
	if err != nil {
		logger.Error("Sync failed", "error", err, "room_id", req.RoomID)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, result)
}

// CacheStatus reports the room's cache entry without scraping.
func (h *APIHandlers) CacheStatus(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")

	status, err := h.svc.CacheStatus(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, status)
}

// InvalidateCache drops the room's cache entry. Admin only.
func (h *APIHandlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Info("Invalidating cache", "room_id", req.RoomID)
	if err := h.svc.Invalidate(r.Context(), req.RoomID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, map[string]bool{"ok": true})
}

// InflationHistory returns the room's recorded inflation trend.
// ?since=<RFC3339> bounds the window, defaulting to the last 24 hours.
func (h *APIHandlers) InflationHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")

	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	points, err := h.svc.InflationHistory(r.Context(), roomID, since)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{"roomId": roomID, "points": points})
}

// League returns the configured league settings.
func (h *APIHandlers) League(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.League())
}

// EventsSSE provides Server-Sent Events for realtime updates
func (h *APIHandlers) EventsSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	eventChan := h.pubsub.Subscribe()
	defer h.pubsub.Unsubscribe(eventChan)

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	for {
		select {
		case event := <-eventChan:
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected")
			return
		case <-time.After(30 * time.Second):
			fmt.Fprintf(w, ": keepalive\n\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service sentinel errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrUpstreamUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
