package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"

	"github.com/couchgm/auctionwatch/internal/analytics"
	"github.com/couchgm/auctionwatch/internal/auth"
	"github.com/couchgm/auctionwatch/internal/cache"
	"github.com/couchgm/auctionwatch/internal/config"
	"github.com/couchgm/auctionwatch/internal/coordinator"
	"github.com/couchgm/auctionwatch/internal/handlers"
	"github.com/couchgm/auctionwatch/internal/logger"
	"github.com/couchgm/auctionwatch/internal/projections"
	"github.com/couchgm/auctionwatch/internal/pubsub"
	"github.com/couchgm/auctionwatch/internal/scraper"
	"github.com/couchgm/auctionwatch/internal/service"
	"github.com/couchgm/auctionwatch/internal/store"
	"github.com/couchgm/auctionwatch/internal/valuation"
)

const natsSubject = "auction.events"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel)
	logger.Info("Starting auctionwatch service")

	// NATS backs both the shared store and the event bus. An embedded server
	// keeps local development free of external dependencies.
	var nc *nats.Conn
	if cfg.NATS.Embedded {
		logger.Info("Starting embedded NATS server for local development")
		embedded, err := pubsub.NewEmbeddedServer(pubsub.EmbeddedServerOptions{
			Port:     0,
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			logger.Error("Failed to start embedded NATS", "error", err)
			log.Fatalf("Failed to start embedded NATS: %v", err)
		}
		defer embedded.Shutdown()

		nc, err = embedded.Connect()
		if err != nil {
			logger.Error("Failed to connect to embedded NATS", "error", err)
			log.Fatalf("Failed to connect to embedded NATS: %v", err)
		}
		logger.Info("Embedded NATS server ready", "url", embedded.ClientURL())
	} else {
		natsURL := cfg.NATS.URL
		if natsURL == "" {
			natsURL = nats.DefaultURL
		}
		nc, err = nats.Connect(natsURL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err, "url", natsURL)
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		logger.Info("Connected to NATS", "url", natsURL)
	}
	defer nc.Close()

	sharedStore, err := store.NewNATSStoreWithConn(nc, store.NATSStoreConfig{
		LockTTL:       cfg.Lock.TTL.Std(),
		CacheBackstop: 4 * cfg.Cache.TTL.Std(),
		MemoryStorage: cfg.NATS.Embedded && cfg.NATS.StoreDir == "",
	})
	if err != nil {
		logger.Error("Failed to initialize shared store", "error", err)
		log.Fatalf("Failed to initialize shared store: %v", err)
	}

	natsPubSub, err := pubsub.NewNATSPubSubWithConn(nc, natsSubject)
	if err != nil {
		logger.Error("Failed to initialize NATS pubsub", "error", err)
		log.Fatalf("Failed to initialize NATS pubsub: %v", err)
	}
	events := pubsub.NewWithUpstream(natsPubSub)

	// Projection catalog driver
	var catalog projections.Catalog
	switch cfg.Projections.Driver {
	case "memory":
		catalog = projections.NewMemoryCatalog()
		logger.Info("Using in-memory projection catalog")
	case "sqlite":
		dsn := cfg.Projections.DSN
		if dsn == "" {
			dsn = "projections.sqlite"
		}
		catalog, err = projections.NewSQLiteCatalog(dsn)
		if err != nil {
			logger.Error("Failed to initialize SQLite catalog", "error", err)
			log.Fatalf("Failed to initialize SQLite catalog: %v", err)
		}
		logger.Info("Connected to SQLite projection catalog", "file", dsn)
	case "postgres":
		if cfg.Projections.DSN == "" {
			logger.Error("projections dsn is required for postgres driver")
			log.Fatal("projections dsn is required for postgres driver")
		}
		catalog, err = projections.NewPostgresCatalog(cfg.Projections.DSN)
		if err != nil {
			logger.Error("Failed to initialize Postgres catalog", "error", err)
			log.Fatalf("Failed to initialize Postgres catalog: %v", err)
		}
		logger.Info("Connected to Postgres projection catalog")
	}
	defer catalog.Close()

	// Analytics recorder
	var recorder analytics.Recorder = analytics.NoopRecorder{}
	if cfg.Analytics.Enabled {
		recorder, err = analytics.NewClickHouseRecorder(
			cfg.Analytics.Addr, cfg.Analytics.Database,
			cfg.Analytics.Username, cfg.Analytics.Password)
		if err != nil {
			logger.Error("Failed to initialize ClickHouse", "error", err, "address", cfg.Analytics.Addr)
			log.Fatalf("Failed to initialize ClickHouse: %v", err)
		}
		defer recorder.Close()
		logger.Info("Connected to ClickHouse", "address", cfg.Analytics.Addr)
	} else {
		logger.Info("Analytics disabled, sync history will not be recorded")
	}

	// Authentication
	var authProvider auth.Provider
	if cfg.Auth.Mode == "oidc" {
		if cfg.Auth.BaseURL == "" || cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" {
			logger.Error("auth base_url, client_id, and client_secret are required for oidc mode")
			log.Fatal("auth base_url, client_id, and client_secret are required for oidc mode")
		}
		authProvider = auth.NewOIDCAuth(&auth.OIDCConfig{
			BaseURL:      cfg.Auth.BaseURL,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			RedirectURL:  cfg.Auth.RedirectURL,
		})
		logger.Info("Using OIDC authentication", "url", cfg.Auth.BaseURL)
	} else {
		logger.Info("Using mock authentication for local development")
		authProvider = auth.NewMockAuth()
	}

	// Sync pipeline
	auctionCache := cache.New(sharedStore, cfg.Cache.TTL.Std())
	if cfg.Upstream.BaseURL == "" {
		logger.Warn("No upstream base URL configured, scrapes will fail until UPSTREAM_BASE_URL is set")
	}
	upstream := scraper.NewHTTPScraper(cfg.Upstream.BaseURL, cfg.Upstream.Timeout.Std())
	coord := coordinator.New(sharedStore, auctionCache, upstream, coordinator.Config{
		LockTTL:       cfg.Lock.TTL.Std(),
		PollInterval:  cfg.Lock.PollInterval.Std(),
		MaxPolls:      cfg.Lock.MaxPolls,
		ScrapeTimeout: cfg.Upstream.Timeout.Std(),
	})

	engine := valuation.NewEngine(cfg.Scarcity)
	svc, err := service.New(coord, auctionCache, catalog, engine, events, recorder, cfg.League)
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		log.Fatalf("Failed to build service: %v", err)
	}

	// Periodic cache sweep
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Cache.SweepCron, func() {
		removed, err := auctionCache.SweepExpired(context.Background(), cfg.Cache.SweepGrace.Std())
		if err != nil {
			logger.Warn("Cache sweep failed", "error", err)
			return
		}
		if removed > 0 {
			logger.Info("Cache sweep complete", "removed", removed)
		}
	}); err != nil {
		logger.Error("Invalid sweep cron expression", "error", err, "cron", cfg.Cache.SweepCron)
		log.Fatalf("Invalid sweep cron expression: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP routes
	mux := http.NewServeMux()
	api := handlers.NewAPIHandlers(svc)

	// Auth routes (public)
	mux.HandleFunc("/auth/login", authProvider.LoginHandler)
	mux.HandleFunc("/auth/callback", authProvider.CallbackHandler)
	mux.HandleFunc("/auth/logout", authProvider.LogoutHandler)

	// Auction API
	mux.HandleFunc("/api/auction", api.GetAuction)
	mux.HandleFunc("/api/auction/sync", api.SyncAuction)
	mux.HandleFunc("/api/auction/cache", api.CacheStatus)
	mux.HandleFunc("/api/auction/history", api.InflationHistory)
	mux.HandleFunc("/api/league", api.League)

	// Admin API (protected)
	mux.HandleFunc("/api/auction/invalidate", authProvider.Middleware(api.InvalidateCache))

	// SSE for realtime updates
	mux.HandleFunc("/api/events", api.EventsSSE)

	// Health check endpoints
	mux.HandleFunc("/api/health", healthHandler)
	mux.HandleFunc("/healthz", livenessHandler)
	mux.HandleFunc("/readyz", readinessHandler(nc))

	addr := "0.0.0.0:" + cfg.Port
	logger.Info("Server starting", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Server failed", "error", err)
		log.Fatal(err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func readinessHandler(nc *nats.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !nc.IsConnected() {
			http.Error(w, "nats disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}
}
