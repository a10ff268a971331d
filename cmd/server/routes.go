package main

import (
	"codeberg.org/pdgen/server/api/rest/account"
	"codeberg.org/pdgen/server/api/rest/bulk"
	"codeberg.org/pdgen/server/api/rest/describe"
	"codeberg.org/pdgen/server/api/rest/developer"
	"codeberg.org/pdgen/server/api/rest/health"
	"codeberg.org/pdgen/server/internal/metrics"
	"github.com/gin-gonic/gin"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(CORSMiddleware(server.config.AllowedOrigins))

	health.RegisterRoutes(router, string(server.config.StoreKind()))
	metrics.RegisterRoutes(router, server.metrics)

	api := router.Group("/api")

	{
		describe.RegisterRoutes(api, server.gate, server.generator, server.recorder)
		bulk.RegisterRoutes(api, server.gate, server.generator, server.recorder)
		account.RegisterRoutes(api, server.gate, server.credits, server.userRepo)
		developer.RegisterRoutes(api.Group("/v1"), server.gate, server.keys, server.generator, server.recorder)
	}
}
