package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/auth"
	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/plans"
	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()

	store := kv.NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck,gosec // test cleanup

	out := &bytes.Buffer{}
	a, err := newApp(store, out)
	require.NoError(t, err)

	return a, out
}

// parses args like the real binary and runs the selected command
func run(t *testing.T, a *app, args ...string) error {
	t.Helper()

	var cli CLI
	parser, err := kong.New(&cli, kong.Name("keyctl"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)

	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	return ctx.Run(a)
}

func TestKeyCreateAndShow(t *testing.T) {
	a, out := newTestApp(t)

	require.NoError(t, run(t, a, "key", "create", "--name", "Acme Shop", "--plan", "starter"))

	first, _, ok := strings.Cut(out.String(), "\n")
	require.True(t, ok)

	key := strings.TrimPrefix(first, "key: ")
	assert.True(t, strings.HasPrefix(key, apikeys.KeyPrefix))

	account, err := a.keys.Validate(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, plans.Starter, account.Plan)
	assert.Equal(t, "Acme Shop", account.Name)

	_, err = a.keys.IncrementUsage(context.Background(), key)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, run(t, a, "key", "show", key))

	var status keyStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Equal(t, 1, status.Used)
	assert.Equal(t, 999, status.Remaining)
}

func TestKeyCreate_RejectsUnknownPlan(t *testing.T) {
	a, _ := newTestApp(t)

	err := run(t, a, "key", "create", "--name", "Acme", "--plan", "platinum")
	assert.Error(t, err)
}

func TestKeyRevoke(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	key, _, err := a.keys.CreateAPIKey(ctx, apikeys.AccountData{Name: "Acme"})
	require.NoError(t, err)

	require.NoError(t, run(t, a, "key", "revoke", key))
	assert.Equal(t, "revoked\n", out.String())

	_, err = a.keys.Validate(ctx, key)
	assert.ErrorIs(t, err, apikeys.ErrInvalidKey)

	assert.ErrorIs(t, run(t, a, "key", "revoke", key), apikeys.ErrInvalidKey)
}

func TestUserCreateSeedsCredits(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, run(t, a, "user", "create", "new@acme.test", "--plan", "starter"))

	var created struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Credits struct {
			Descriptions int       `json:"descriptions"`
			ResetDate    time.Time `json:"resetDate"`
		} `json:"credits"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &created))
	require.NotEmpty(t, created.User.ID)
	assert.Equal(t, 100, created.Credits.Descriptions)

	// the stored cycle is anchored at signup, not at first use
	raw, err := a.store.HGet(ctx, "credits:"+created.User.ID, "reset_date")
	require.NoError(t, err)

	resetDate, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), resetDate, time.Minute)
}

func TestUserSetPlanResetsCredits(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, run(t, a, "user", "create", "owner@acme.test"))

	user, err := a.users.FindByEmail(ctx, "owner@acme.test")
	require.NoError(t, err)
	assert.Equal(t, plans.Free, user.Plan)

	_, err = a.credits.DeductCredits(ctx, user.ID, "descriptions", 4)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, run(t, a, "user", "set-plan", user.ID, "professional"))

	balance, err := a.credits.GetCredits(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, balance.Descriptions)
	assert.Equal(t, 200, balance.Images)

	out.Reset()
	require.NoError(t, run(t, a, "user", "credits", user.ID))
	assert.Contains(t, out.String(), `"descriptions": 500`)

	assert.Error(t, run(t, a, "user", "credits", "missing-user"))
}

func TestTokenIsAcceptedByAuth(t *testing.T) {
	t.Setenv("JWT_SECRET", "keyctl-test-secret")
	a, out := newTestApp(t)

	require.NoError(t, run(t, a, "token", "user-7", "u7@acme.test", "--ttl", "2h"))

	claims, err := auth.ValidateJWT(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}
