package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

const (
	// how long issued tokens stay valid
	tokenLifetime = 7 * 24 * time.Hour

	tokenIssuer = "pdgen"
)
