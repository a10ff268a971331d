package errors

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// error categories for classification
const (
	CategoryDatabase   = "database"
	CategoryNetwork    = "network"
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryNotFound   = "not_found"
	CategoryTimeout    = "timeout"
	CategoryStore      = "store"
	CategoryUpstream   = "upstream"
	CategoryUnknown    = "unknown"
)

// client-facing message per category in production
var productionMessages = map[string]string{
	CategoryDatabase:   "database operation failed",
	CategoryNetwork:    "connection error occurred",
	CategoryValidation: "validation failed",
	CategoryAuth:       "permission denied",
	CategoryNotFound:   "resource not found",
	CategoryTimeout:    "request timed out",
	CategoryStore:      "storage operation failed",
	CategoryUpstream:   "generation provider unavailable",
	CategoryUnknown:    "an error occurred",
}

// message fragments checked in order when the error has no known type.
// store and upstream come first: their wrapped errors often also mention
// connections or timeouts.
var keywordRules = []struct {
	category string
	keywords []string
}{
	{CategoryStore, []string{"redis", "kv ", "key-value"}},
	{CategoryUpstream, []string{"gemini", "openai", "image generation", "description generation"}},
	{CategoryTimeout, []string{"timeout", "deadline"}},
	{CategoryNotFound, []string{"not found", "no rows"}},
	{CategoryDatabase, []string{"database", "sql", "postgres", "pgx"}},
	{CategoryNetwork, []string{"connection", "network", "dial"}},
	{CategoryValidation, []string{"validation", "binding", "invalid", "required"}},
	{CategoryAuth, []string{"unauthorized", "forbidden", "permission", "auth"}},
}

// analyzes an error and returns its category and sanitized message
func classifyError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{CategoryUnknown, ""}
	}

	category := typedCategory(err)
	if category == "" {
		category = keywordCategory(strings.ToLower(err.Error()))
	}

	sanitized := err.Error()
	if os.Getenv("ENVIRONMENT") == "production" {
		sanitized = productionMessages[category]
	}

	return ErrorInfo{category: category, sanitized: sanitized}
}

func typedCategory(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return CategoryDatabase
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return CategoryNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}

		return CategoryNetwork
	}

	return ""
}

func keywordCategory(msg string) string {
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.category
			}
		}
	}

	return CategoryUnknown
}
