package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"pg error", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), CategoryDatabase},
		{"no rows", fmt.Errorf("lookup: %w", pgx.ErrNoRows), CategoryNotFound},
		{"deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), CategoryTimeout},
		{"redis before timeout", errors.New("redis: i/o timeout"), CategoryStore},
		{"upstream", errors.New("gemini generation failed: 503"), CategoryUpstream},
		{"kv missing key", errors.New("kv: key not found"), CategoryNotFound},
		{"dial", errors.New("dial tcp 10.0.0.1:5432: connection refused"), CategoryNetwork},
		{"binding", errors.New("Key: 'Request.Products' Error:Field validation for 'Products' failed on the 'required' tag"), CategoryValidation},
		{"other", errors.New("boom"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Category(tt.err))
		})
	}
}

func TestSanitizeError_Production(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	assert.Equal(t, "storage operation failed", sanitizeError(errors.New("redis: connection pool exhausted at 10.1.2.3")))
	assert.Equal(t, "an error occurred", sanitizeError(errors.New("boom")))

	t.Setenv("ENVIRONMENT", "development")
	assert.Equal(t, "boom", sanitizeError(errors.New("boom")))
}

func respond(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)

	handler(c)
	return w
}

func TestRateLimitExceeded(t *testing.T) {
	w := respond(func(c *gin.Context) {
		RateLimitExceeded(c, "", 5, 0)
		assert.True(t, c.IsAborted())
	})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"), "retry-after is at least one second")

	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, TitleRateLimitExceeded, body.Error)
	assert.Equal(t, 5, body.Limit)
	assert.Equal(t, 1, body.RetryAfter)
	assert.NotEmpty(t, body.Message)
}

func TestUsageLimitExceeded(t *testing.T) {
	w := respond(func(c *gin.Context) { UsageLimitExceeded(c, 100, 100) })

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body UsageLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Usage limit exceeded", body.Error)
	assert.Equal(t, 100, body.Limit)
	assert.Equal(t, 100, body.Used)
}

func TestInvalidAPIKey(t *testing.T) {
	w := respond(func(c *gin.Context) { InvalidAPIKey(c, "") })

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Authentication failed","message":"Invalid API key"}`, w.Body.String())
}

func TestInsufficientCredits(t *testing.T) {
	w := respond(func(c *gin.Context) { InsufficientCredits(c, "images", 1, 0) })

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.JSONEq(t, `{
		"error": "Insufficient credits",
		"message": "Not enough images credits remaining",
		"resource": "images",
		"creditsNeeded": 1,
		"creditsAvailable": 0
	}`, w.Body.String())
}

func TestInternalError_SanitizesDetails(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	w := respond(func(c *gin.Context) {
		InternalError(c, "failed to deduct credits", errors.New("redis: READONLY You can't write against a read only replica"))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"server_error","message":"failed to deduct credits","details":"storage operation failed"}`, w.Body.String())
}
