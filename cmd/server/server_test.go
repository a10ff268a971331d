package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/auth"
	"codeberg.org/pdgen/server/internal/config"
	"codeberg.org/pdgen/server/internal/plans"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "server-test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", testSecret)

	srv, err := NewServer(context.Background(), &config.Config{
		Port:            "0",
		Environment:     "test",
		JWTSecret:       testSecret,
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return srv
}

func send(srv *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestUnknownAPIKeyIsRejected(t *testing.T) {
	srv := newTestServer(t)

	w := send(srv, http.MethodPost, "/api/v1/generate", `{"products":[{"product_name":"Mug"}]}`,
		map[string]string{"X-API-Key": "pdg_not_a_real_key"})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Authentication failed","message":"Invalid API key"}`, w.Body.String())
}

func TestExhaustedMonthlyQuota(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	key, _, err := srv.keys.CreateAPIKey(ctx, apikeys.AccountData{Name: "shop", Plan: plans.Free})
	require.NoError(t, err)

	for range 100 {
		_, err := srv.keys.IncrementUsage(ctx, key)
		require.NoError(t, err)
	}

	w := send(srv, http.MethodPost, "/api/v1/generate", `{"products":[{"product_name":"Mug"}]}`,
		map[string]string{"X-API-Key": key})

	require.Equal(t, http.StatusTooManyRequests, w.Code)

	body := decode(t, w)
	assert.Equal(t, "Usage limit exceeded", body["error"])
	assert.InDelta(t, 100, body["limit"], 0)
	assert.InDelta(t, 100, body["used"], 0)
}

func TestAPIKeyGenerate(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	key, _, err := srv.keys.CreateAPIKey(ctx, apikeys.AccountData{Name: "shop", Plan: plans.Free})
	require.NoError(t, err)

	header := map[string]string{"X-API-Key": key}

	w := send(srv, http.MethodPost, "/api/v1/generate",
		`{"products":[{"product_name":"Mug"},{"product_name":""}],"tone":"playful"}`, header)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "100", w.Header().Get("X-Usage-Limit"))
	assert.Equal(t, "99", w.Header().Get("X-Usage-Remaining"))
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["results"], 1)
	assert.Len(t, body["errors"], 1)

	metadata := body["metadata"].(map[string]any)
	assert.Equal(t, "free", metadata["plan"])
	assert.InDelta(t, 2, metadata["processed"], 0)

	// free keys accept at most 5 products
	products := strings.Repeat(`{"product_name":"Mug"},`, 6)
	w = send(srv, http.MethodPost, "/api/v1/generate", `{"products":[`+strings.TrimSuffix(products, ",")+`]}`, header)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(srv, http.MethodGet, "/api/v1/status", "", header)
	require.Equal(t, http.StatusOK, w.Code)

	status := decode(t, w)
	usage := status["usage"].(map[string]any)
	assert.InDelta(t, 1, usage["current_month"], 0, "the rejected batch is not counted")
	assert.InDelta(t, 100, usage["monthly_limit"], 0)
	assert.InDelta(t, 99, usage["remaining"], 0)
	assert.InDelta(t, 1, usage["percentage_used"], 0)
}

func TestStatusWithoutKey(t *testing.T) {
	srv := newTestServer(t)

	w := send(srv, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "operational", decode(t, w)["status"])

	w = send(srv, http.MethodGet, "/api/v1/status", "", map[string]string{"X-API-Key": "pdg_nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBulkGenerateWindow(t *testing.T) {
	srv := newTestServer(t)

	body := `{"products":[{"product_name":"Mug"},{"product_name":"Plate"}]}`

	for i := range 5 {
		w := send(srv, http.MethodPost, "/api/bulk-generate", body, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d: %s", i+1, w.Body.String())
	}

	for i := 5; i < 11; i++ {
		w := send(srv, http.MethodPost, "/api/bulk-generate", body, nil)
		require.Equal(t, http.StatusTooManyRequests, w.Code, "request %d", i+1)

		retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
		require.NoError(t, err)
		assert.Positive(t, retryAfter)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestBulkGenerateEmbedsItemErrors(t *testing.T) {
	srv := newTestServer(t)

	w := send(srv, http.MethodPost, "/api/bulk-generate", `{"products":[{"product_name":"Mug"},{"category":"kitchen"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.InDelta(t, 2, body["processed"], 0)
	assert.InDelta(t, 1, body["successful"], 0)

	results := body["results"].([]any)
	failed := results[1].(map[string]any)
	assert.Equal(t, false, failed["success"])
	assert.Equal(t, "product_name is required", failed["error"])

	w = send(srv, http.MethodPost, "/api/bulk-generate", `{"products":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDescribeChargesSignedInUsers(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	user, err := srv.userRepo.Create(ctx, "owner@shop.test", plans.Free)
	require.NoError(t, err)

	token, err := auth.GenerateJWT(user.ID, user.Email)
	require.NoError(t, err)

	bearer := map[string]string{"Authorization": "Bearer " + token}

	w := send(srv, http.MethodPost, "/api/generate-description", `{"productName":"Desk Lamp","tone":"warm"}`, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Len(t, body["descriptions"], 1)
	assert.Contains(t, body["descriptions"].([]any)[0], "Desk Lamp")

	w = send(srv, http.MethodGet, "/api/auth/credits", "", bearer)
	require.Equal(t, http.StatusOK, w.Code)

	credits := decode(t, w)
	balance := credits["credits"].(map[string]any)
	assert.InDelta(t, 9, balance["descriptions"], 0)
	assert.InDelta(t, 5, balance["images"], 0)
	assert.Len(t, credits["usage"], 7)
	assert.Equal(t, "owner@shop.test", credits["user"].(map[string]any)["email"])

	// anonymous callers are not charged
	w = send(srv, http.MethodPost, "/api/generate-description", `{"productName":"Desk Lamp"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = send(srv, http.MethodPost, "/api/generate-description", `{"tone":"warm"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(srv, http.MethodGet, "/api/auth/credits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDescribeInsufficientCredits(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	user, err := srv.userRepo.Create(ctx, "small@shop.test", plans.Free)
	require.NoError(t, err)

	_, err = srv.credits.DeductCredits(ctx, user.ID, "descriptions", 10)
	require.NoError(t, err)

	token, err := auth.GenerateJWT(user.ID, user.Email)
	require.NoError(t, err)

	w := send(srv, http.MethodPost, "/api/generate-description", `{"productName":"Desk Lamp"}`,
		map[string]string{"Authorization": "Bearer " + token})

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	body := decode(t, w)
	assert.Equal(t, "descriptions", body["resource"])
	assert.InDelta(t, 1, body["creditsNeeded"], 0)
	assert.InDelta(t, 0, body["creditsAvailable"], 0)
}

func TestImagesOnlyWithoutProvider(t *testing.T) {
	srv := newTestServer(t)

	w := send(srv, http.MethodPost, "/api/generate-description", `{"productName":"Desk Lamp","imagesOnly":true}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPreflightAndHealth(t *testing.T) {
	srv := newTestServer(t)

	w := send(srv, http.MethodOptions, "/api/bulk-generate", "", map[string]string{
		"Origin":                        "https://shop.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = send(srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "memory", decode(t, w)["store"])

	w = send(srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pdgen_gate_decisions_total")
}
