package developer

import (
	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/usagelog"
	"github.com/gin-gonic/gin"
)

// registers the API key routes under /api/v1
func RegisterRoutes(rg *gin.RouterGroup, g *gate.Gate, keys *apikeys.Registry, gen *generator.Service, rec usagelog.Recorder) {
	rg.POST("/generate", g.Throttle(""), g.RequireAPIKey(), GenerateHandler(g, gen, rec))
	rg.GET("/status", g.Throttle(""), StatusHandler(keys))
}
