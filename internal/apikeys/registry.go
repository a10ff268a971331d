package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/plans"
	"codeberg.org/pdgen/server/internal/ratelimit"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
)

const (
	// KeyPrefix marks every key this service issues
	KeyPrefix = "pdg_"
	keyBytes  = 32

	keyAccount = "apikey:%s"
	keyUsage   = "apikey_usage:%s"

	fieldCurrentMonth = "current_month"
	fieldLastReset    = "last_reset"
)

// Registry maps API keys to accounts and meters their use.
type Registry struct {
	store     kv.Store
	rateStore limiter.Store
	now       func() time.Time
}

type Option func(*Registry)

// overrides the clock, for tests
func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// creates a registry. rateStore backs the per-minute limiter and may be the
// memory or redis driver from ulule/limiter.
func NewRegistry(store kv.Store, rateStore limiter.Store, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		rateStore: rateStore,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// looks up the account behind a key. no side effects.
func (r *Registry) Validate(ctx context.Context, key string) (*Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidKey
	}

	raw, err := r.store.Get(ctx, fmt.Sprintf(keyAccount, key))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrInvalidKey
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}

	var rec accountRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode api key account: %w", err)
	}

	usage, err := r.loadUsage(ctx, key)
	if err != nil {
		return nil, err
	}

	return &Account{
		ID:      rec.ID,
		Name:    rec.Name,
		Email:   rec.Email,
		Plan:    rec.Plan,
		Limits:  effectiveLimits(rec.Limits),
		Usage:   usage,
		Created: rec.Created,
		Key:     key,
	}, nil
}

// applies the key's per-minute limit
func (r *Registry) CheckRateLimit(ctx context.Context, account *Account) (ratelimit.Result, error) {
	limits := effectiveLimits(account.Limits)
	rate := limiter.Rate{Period: time.Minute, Limit: int64(limits.RequestsPerMinute)}

	lctx, err := limiter.New(r.rateStore, rate).Get(ctx, account.Key)
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("failed to check api key rate limit: %w", err)
	}

	reset := time.Unix(lctx.Reset, 0)
	result := ratelimit.Result{
		Allowed:   !lctx.Reached,
		Remaining: int(lctx.Remaining),
		Limit:     int(lctx.Limit),
		ResetTime: reset,
	}

	if lctx.Reached {
		result.RetryAfter = ratelimit.RetryAfterSeconds(reset, r.now())
	}

	return result, nil
}

// rolls the monthly counter over when the calendar month has changed, then
// compares it to the account's monthly limit. account.Usage is refreshed.
func (r *Registry) CheckUsageLimit(ctx context.Context, account *Account) (UsageResult, error) {
	usage, err := r.loadUsage(ctx, account.Key)
	if err != nil {
		return UsageResult{}, err
	}

	now := r.now().UTC()
	if !sameMonth(usage.LastReset, now) {
		err := r.store.HSet(ctx, fmt.Sprintf(keyUsage, account.Key), map[string]string{
			fieldCurrentMonth: "0",
			fieldLastReset:    now.Format(time.RFC3339),
		})
		if err != nil {
			return UsageResult{}, fmt.Errorf("failed to reset monthly usage: %w", err)
		}

		usage = Usage{CurrentMonth: 0, LastReset: now}
	}

	account.Usage = usage
	limit := effectiveLimits(account.Limits).RequestsPerMonth

	return UsageResult{
		Allowed:   usage.CurrentMonth < limit,
		Remaining: max(0, limit-usage.CurrentMonth),
		Limit:     limit,
		Used:      usage.CurrentMonth,
		ResetAt:   NextReset(now),
	}, nil
}

// records one request against the monthly counter. callers check the limit first.
func (r *Registry) IncrementUsage(ctx context.Context, key string) (int, error) {
	n, err := r.store.HIncrBy(ctx, fmt.Sprintf(keyUsage, key), fieldCurrentMonth, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return int(n), nil
}

// issues a new key for an account, seeding its limits from the plan table
func (r *Registry) CreateAPIKey(ctx context.Context, data AccountData) (string, *Account, error) {
	plan := plans.OrFree(data.Plan)

	key, err := generateKey()
	if err != nil {
		return "", nil, err
	}

	now := r.now().UTC()
	rec := accountRecord{
		ID:      uuid.NewString(),
		Name:    data.Name,
		Email:   data.Email,
		Plan:    plan,
		Limits:  LimitsFor(plan).Limits,
		Created: now,
	}

	if err := r.save(ctx, key, rec); err != nil {
		return "", nil, err
	}

	err = r.store.HSet(ctx, fmt.Sprintf(keyUsage, key), map[string]string{
		fieldCurrentMonth: "0",
		fieldLastReset:    now.Format(time.RFC3339),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to initialize usage: %w", err)
	}

	return key, &Account{
		ID:      rec.ID,
		Name:    rec.Name,
		Email:   rec.Email,
		Plan:    rec.Plan,
		Limits:  rec.Limits,
		Usage:   Usage{LastReset: now},
		Created: now,
		Key:     key,
	}, nil
}

// removes a key and its usage counters
func (r *Registry) Revoke(ctx context.Context, key string) error {
	if err := r.store.Del(ctx, fmt.Sprintf(keyAccount, key), fmt.Sprintf(keyUsage, key)); err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	return nil
}

func (r *Registry) save(ctx context.Context, key string, rec accountRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode api key account: %w", err)
	}

	if err := r.store.Set(ctx, fmt.Sprintf(keyAccount, key), string(data), 0); err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}

	return nil
}

func (r *Registry) loadUsage(ctx context.Context, key string) (Usage, error) {
	fields, err := r.store.HGetAll(ctx, fmt.Sprintf(keyUsage, key))
	if err != nil {
		return Usage{}, fmt.Errorf("failed to load usage: %w", err)
	}

	var usage Usage

	if raw, ok := fields[fieldCurrentMonth]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Usage{}, fmt.Errorf("corrupt usage counter %q: %w", raw, err)
		}
		usage.CurrentMonth = n
	}

	if raw, ok := fields[fieldLastReset]; ok {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Usage{}, fmt.Errorf("corrupt usage reset date %q: %w", raw, err)
		}
		usage.LastReset = t
	}

	return usage, nil
}

// first instant of the month after t, when monthly usage resets
func NextReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func sameMonth(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}

	a = a.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func generateKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
