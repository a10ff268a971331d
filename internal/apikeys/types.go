package apikeys

import (
	"errors"
	"time"

	"codeberg.org/pdgen/server/internal/plans"
)

var (
	// returned by Validate for empty or unknown keys
	ErrInvalidKey = errors.New("invalid API key")
)

type Limits struct {
	RequestsPerMonth  int `json:"requestsPerMonth"`
	RequestsPerMinute int `json:"requestsPerMinute"`
}

type Usage struct {
	CurrentMonth int       `json:"currentMonth"`
	LastReset    time.Time `json:"lastReset"`
}

// account metadata attached to an API key
type Account struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Plan    plans.Plan `json:"plan"`
	Limits  Limits     `json:"limits"`
	Usage   Usage      `json:"usage"`
	Created time.Time  `json:"created"`

	// the key itself is never serialized
	Key string `json:"-"`
}

// data supplied when provisioning a new key
type AccountData struct {
	Name  string
	Email string
	Plan  plans.Plan
}

// outcome of a monthly quota check
type UsageResult struct {
	Allowed   bool
	Remaining int
	Limit     int
	Used      int

	// start of the next calendar month on the registry clock
	ResetAt time.Time
}

// persisted form of an account; usage lives in its own hash so it can be
// incremented atomically
type accountRecord struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Plan    plans.Plan `json:"plan"`
	Limits  Limits     `json:"limits"`
	Created time.Time  `json:"created"`
}

// per-plan API limits
type PlanLimits struct {
	Limits
	MaxBatchSize int
}
