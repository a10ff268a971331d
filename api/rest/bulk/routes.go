package bulk

import (
	"codeberg.org/pdgen/server/internal/auth"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/usagelog"
	"github.com/gin-gonic/gin"
)

// registers the bulk generation route
func RegisterRoutes(rg *gin.RouterGroup, g *gate.Gate, gen *generator.Service, rec usagelog.Recorder) {
	rg.POST("/bulk-generate", g.Throttle(""), auth.OptionalAuthMiddleware(), Handler(g, gen, rec))
}
