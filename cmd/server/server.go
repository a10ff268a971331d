package main

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/config"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/metrics"
	"codeberg.org/pdgen/server/internal/ratelimit"
	"codeberg.org/pdgen/server/internal/usagelog"
	"codeberg.org/pdgen/server/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// entries kept by the in-process usage log
	memoryLogCapacity = 1000

	logFlushInterval     = 5 * time.Second
	maxPendingLogEntries = 10000
)

// creates and configures a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	policies, err := loadPolicies(cfg)
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(cfg)
	if err != nil {
		return nil, err
	}

	rateStore, err := apikeys.NewRateStore(store)
	if err != nil {
		store.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
		return nil, err
	}

	m := metrics.New()

	gen, err := generator.NewFromConfig(ctx, cfg, m)
	if err != nil {
		store.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	recorder, flusher, db := openRecorder(ctx, cfg)

	userRepo := users.NewRepository(store)
	creditStore := credits.NewStore(store, userRepo)
	ledger := credits.NewLedger(store, userRepo)
	keys := apikeys.NewRegistry(store, rateStore)
	counter := ratelimit.NewCounter(store, policies)

	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware())

	server := &Server{
		config:    cfg,
		store:     store,
		db:        db,
		flusher:   flusher,
		router:    router,
		metrics:   m,
		gate:      gate.New(counter, keys, creditStore, ledger, m),
		keys:      keys,
		credits:   creditStore,
		userRepo:  userRepo,
		generator: gen,
		recorder:  recorder,
	}

	RegisterRoutes(router, server)

	logger.Info("server initialized",
		"store", cfg.StoreKind(),
		"policies", len(policies),
		"images_enabled", gen.ImagesEnabled(),
		"usage_log", db != nil,
	)

	return server, nil
}

// flushes the usage log, then releases the store and database connections
func (s *Server) Close() {
	if s.flusher != nil {
		s.flusher.Stop()
	}

	if err := s.store.Close(); err != nil {
		logger.ErrorErr(err, "failed to close store")
	}

	if s.db != nil {
		s.db.Close()
	}
}

func loadPolicies(cfg *config.Config) (ratelimit.Policies, error) {
	policies := ratelimit.DefaultPolicies()

	if cfg.PolicyFile == "" {
		return policies, nil
	}

	file, err := config.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	policies, err = policies.WithOverrides(file.Policies)
	if err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", cfg.PolicyFile, err)
	}

	logger.Info("rate limit policies loaded", "file", cfg.PolicyFile, "overrides", len(file.Policies))

	return policies, nil
}

// the usage log is optional; without a database it is kept in memory. the
// database is written from a background flusher.
func openRecorder(ctx context.Context, cfg *config.Config) (usagelog.Recorder, *usagelog.BufferedRecorder, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		return usagelog.NewMemoryRecorder(memoryLogCapacity), nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := usagelog.Connect(connectCtx, cfg.DatabaseURL)
	if err != nil {
		logger.ErrorErr(err, "failed to connect usage log database, continuing with in-memory log")
		return usagelog.NewMemoryRecorder(memoryLogCapacity), nil, nil
	}

	recorder := usagelog.NewPostgresRecorder(db)
	if err := recorder.Initialize(connectCtx); err != nil {
		logger.ErrorErr(err, "failed to initialize usage log table, continuing with in-memory log")
		db.Close()
		return usagelog.NewMemoryRecorder(memoryLogCapacity), nil, nil
	}

	flusher := usagelog.NewBufferedRecorder(recorder, logFlushInterval, maxPendingLogEntries)
	flusher.Start()

	return flusher, flusher, db
}
