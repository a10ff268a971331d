package main

import (
	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/config"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/metrics"
	"codeberg.org/pdgen/server/internal/usagelog"
	"codeberg.org/pdgen/server/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// holds all dependencies and state for the API server
type Server struct {
	config    *config.Config
	store     kv.Store
	db        *pgxpool.Pool
	flusher   *usagelog.BufferedRecorder
	router    *gin.Engine
	metrics   *metrics.Metrics
	gate      *gate.Gate
	keys      *apikeys.Registry
	credits   *credits.Store
	userRepo  *users.Repository
	generator *generator.Service
	recorder  usagelog.Recorder
}
