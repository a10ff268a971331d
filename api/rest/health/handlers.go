package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler godoc
// @Summary Health check
// @Description Reports liveness and which counter store backs the accounting
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func Handler(store string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, Response{
			Status:  "healthy",
			Service: "pdgen",
			Version: "1.0.0",
			Store:   store,
		})
	}
}

// responds with pong for testing
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: "pong"})
}

// registers /health and /api/ping
func RegisterRoutes(router *gin.Engine, store string) {
	router.GET("/health", Handler(store))
	router.GET("/api/ping", PingHandler)
}
