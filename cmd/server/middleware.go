package main

import (
	"net/http"
	"slices"
	"time"

	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// allows browser clients from the configured origins; pre-flight requests
// are answered with 200
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			ratelimit.HeaderAPIKey,
			ratelimit.HeaderUserID,
		},
		ExposeHeaders: []string{
			"Retry-After",
			logger.RequestIDHeader,
			gate.HeaderRateLimitLimit,
			gate.HeaderRateLimitRemaining,
			gate.HeaderRateLimitReset,
			gate.HeaderUsageLimit,
			gate.HeaderUsageRemaining,
			gate.HeaderUsageReset,
		},
		OptionsResponseStatusCode: http.StatusOK,
		MaxAge:                    12 * time.Hour,
	}

	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}
