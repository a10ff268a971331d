package apikeys

import (
	"context"
	"strings"
	"testing"
	"time"

	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/plans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestRegistry(t *testing.T) (*Registry, *testClock, kv.Store) {
	t.Helper()

	store := kv.NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck,gosec // test cleanup

	clock := &testClock{now: time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)}
	return NewRegistry(store, memory.NewStore(), WithNow(clock.Now)), clock, store
}

func TestValidate_RejectsEmptyAndUnknownKeys(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	_, err := registry.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = registry.Validate(ctx, "pdg_doesnotexist")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCreateAPIKey_SeedsLimitsFromPlan(t *testing.T) {
	ctx := context.Background()
	registry, clock, _ := newTestRegistry(t)

	key, account, err := registry.CreateAPIKey(ctx, AccountData{
		Name:  "Acme",
		Email: "ops@acme.test",
		Plan:  plans.Professional,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.Greater(t, len(key), 40)
	assert.Equal(t, Limits{RequestsPerMonth: 10000, RequestsPerMinute: 60}, account.Limits)

	got, err := registry.Validate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, plans.Professional, got.Plan)
	assert.Equal(t, 0, got.Usage.CurrentMonth)
	assert.True(t, clock.now.Equal(got.Created))
	assert.Equal(t, key, got.Key)
}

func TestCreateAPIKey_UniqueKeys(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		key, _, err := registry.CreateAPIKey(ctx, AccountData{Name: "n"})
		require.NoError(t, err)
		assert.False(t, seen[key])
		seen[key] = true
	}
}

func TestCheckUsageLimit_MonthlyRollover(t *testing.T) {
	ctx := context.Background()
	registry, clock, _ := newTestRegistry(t)

	key, _, err := registry.CreateAPIKey(ctx, AccountData{Plan: plans.Free})
	require.NoError(t, err)

	for i := 0; i < 73; i++ {
		_, err := registry.IncrementUsage(ctx, key)
		require.NoError(t, err)
	}

	account, err := registry.Validate(ctx, key)
	require.NoError(t, err)

	res, err := registry.CheckUsageLimit(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, UsageResult{
		Allowed: true, Remaining: 27, Limit: 100, Used: 73,
		ResetAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}, res)

	// first day of the next month
	clock.now = time.Date(2025, 2, 1, 0, 0, 1, 0, time.UTC)

	res, err = registry.CheckUsageLimit(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, UsageResult{
		Allowed: true, Remaining: 100, Limit: 100, Used: 0,
		ResetAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}, res)
	assert.True(t, clock.now.Equal(account.Usage.LastReset))

	reloaded, err := registry.Validate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Usage.CurrentMonth, "reset is persisted")
}

func TestCheckUsageLimit_SameMonthNextYearStillResets(t *testing.T) {
	ctx := context.Background()
	registry, clock, _ := newTestRegistry(t)

	key, _, err := registry.CreateAPIKey(ctx, AccountData{})
	require.NoError(t, err)
	_, err = registry.IncrementUsage(ctx, key)
	require.NoError(t, err)

	clock.now = clock.now.AddDate(1, 0, 0)

	account, err := registry.Validate(ctx, key)
	require.NoError(t, err)

	res, err := registry.CheckUsageLimit(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Used)
}

func TestCheckUsageLimit_Exhausted(t *testing.T) {
	ctx := context.Background()
	registry, _, store := newTestRegistry(t)

	key, _, err := registry.CreateAPIKey(ctx, AccountData{Plan: plans.Free})
	require.NoError(t, err)

	require.NoError(t, store.HSet(ctx, "apikey_usage:"+key, map[string]string{"current_month": "100"}))

	account, err := registry.Validate(ctx, key)
	require.NoError(t, err)

	res, err := registry.CheckUsageLimit(ctx, account)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 100, res.Limit)
	assert.Equal(t, 100, res.Used)
}

func TestValidate_UnsetLimitsFallBackToFreeTier(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	require.NoError(t, registry.save(ctx, "pdg_legacy", accountRecord{
		ID:   "legacy",
		Plan: plans.Enterprise,
	}))

	account, err := registry.Validate(ctx, "pdg_legacy")
	require.NoError(t, err)
	assert.Equal(t, Limits{RequestsPerMonth: 100, RequestsPerMinute: 10}, account.Limits,
		"absent limits are never treated as unlimited")
}

func TestCheckRateLimit_PerMinute(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	account := &Account{Key: "pdg_rate", Limits: Limits{RequestsPerMonth: 10, RequestsPerMinute: 2}}

	for i := 0; i < 2; i++ {
		res, err := registry.CheckRateLimit(ctx, account)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Limit)
		assert.Equal(t, 1-i, res.Remaining)
	}

	res, err := registry.CheckRateLimit(ctx, account)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.GreaterOrEqual(t, res.RetryAfter, 1)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newTestRegistry(t)

	key, _, err := registry.CreateAPIKey(ctx, AccountData{})
	require.NoError(t, err)

	require.NoError(t, registry.Revoke(ctx, key))

	_, err = registry.Validate(ctx, key)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPlanTable(t *testing.T) {
	assert.Equal(t, 5, MaxBatchSize(plans.Free))
	assert.Equal(t, 10, MaxBatchSize(plans.Starter))
	assert.Equal(t, 25, MaxBatchSize(plans.Professional))
	assert.Equal(t, 100, MaxBatchSize(plans.Enterprise))
	assert.Equal(t, 5, MaxBatchSize(plans.Plan("unknown")))
}

func TestNextReset(t *testing.T) {
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), NextReset(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)))
}
