package developer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/plans"
	"codeberg.org/pdgen/server/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func newRouter(t *testing.T, fake *generator.Fake) (*gin.Engine, *apikeys.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := kv.NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck,gosec // test cleanup

	keys := apikeys.NewRegistry(store, memory.NewStore())
	g := gate.New(ratelimit.NewCounter(store, ratelimit.DefaultPolicies()), keys, nil, nil, nil)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), g, keys, generator.New(fake, nil, nil), nil)

	return router, keys
}

func generate(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ratelimit.HeaderAPIKey, key)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func usedThisMonth(t *testing.T, keys *apikeys.Registry, key string) int {
	t.Helper()

	account, err := keys.Validate(context.Background(), key)
	require.NoError(t, err)

	usage, err := keys.CheckUsageLimit(context.Background(), account)
	require.NoError(t, err)
	return usage.Used
}

func TestGenerateHandler_CountsOncePerRequest(t *testing.T) {
	router, keys := newRouter(t, &generator.Fake{})

	key, _, err := keys.CreateAPIKey(context.Background(), apikeys.AccountData{Name: "shop", Plan: plans.Starter})
	require.NoError(t, err)

	w := generate(router, key, `{"products":[{"product_name":"Mug"},{"product_name":"Plate","tone":"bold"}],"tone":"calm"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Results, 2)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, plans.Starter, resp.Metadata.Plan)
	assert.Equal(t, "999", w.Header().Get(gate.HeaderUsageRemaining))

	assert.Equal(t, 1, usedThisMonth(t, keys, key))
}

func TestGenerateHandler_FailedBatchIsNotCounted(t *testing.T) {
	router, keys := newRouter(t, &generator.Fake{Err: errors.New("upstream down")})

	key, _, err := keys.CreateAPIKey(context.Background(), apikeys.AccountData{Name: "shop"})
	require.NoError(t, err)

	w := generate(router, key, `{"products":[{"product_name":"Mug"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "description generation failed", resp.Errors[0].Error)

	assert.Zero(t, usedThisMonth(t, keys, key))
}

func TestGenerateHandler_RequiresProducts(t *testing.T) {
	router, keys := newRouter(t, &generator.Fake{})

	key, _, err := keys.CreateAPIKey(context.Background(), apikeys.AccountData{Name: "shop"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, generate(router, key, `{"products":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, generate(router, key, `{}`).Code)
}

func TestPercentage(t *testing.T) {
	assert.InDelta(t, 33.33, percentage(1, 3), 0.001)
	assert.InDelta(t, 100, percentage(100, 100), 0)
	assert.Zero(t, percentage(5, 0))
}
