package account

import (
	"codeberg.org/pdgen/server/internal/auth"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/users"
	"github.com/gin-gonic/gin"
)

// registers the signed-in account routes under /api/auth
func RegisterRoutes(rg *gin.RouterGroup, g *gate.Gate, creditStore *credits.Store, userRepo *users.Repository) {
	account := rg.Group("/auth")
	account.Use(auth.AuthMiddleware())

	account.GET("/credits", g.Throttle(""), GetCredits(creditStore, userRepo))
}
