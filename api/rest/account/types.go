package account

import (
	"time"

	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/plans"
)

// days of history returned with the balance
const historyDays = 7

type UserSummary struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	Plan      plans.Plan `json:"plan"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// CreditsResponse represents a user's balance and recent usage
type CreditsResponse struct {
	Success bool                 `json:"success"`
	Credits *credits.Balance     `json:"credits"`
	Usage   []credits.DailyUsage `json:"usage"`
	User    UserSummary          `json:"user"`
}
