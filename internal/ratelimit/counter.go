package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"codeberg.org/pdgen/server/internal/kv"
)

const (
	keyWindow = "ratelimit:%s:%s"

	fieldCount = "count"
	fieldStart = "start"
)

// outcome of a single rate limit check
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetTime time.Time
	// seconds until the window resets, only set on rejection
	RetryAfter int
}

// Counter tracks fixed windows per (client, endpoint) pair in a kv.Store.
//
// A window is a hash holding its request count and start time. The first request,
// and the first request at or after start+window, opens a fresh window with count 1.
// Every fresh window is given a TTL of twice the longest configured window, so stale
// windows are dropped by the store's own expiry.
type Counter struct {
	store    kv.Store
	policies Policies
	ttl      time.Duration
	now      func() time.Time
}

type CounterOption func(*Counter)

// overrides the clock, for tests
func WithNow(now func() time.Time) CounterOption {
	return func(c *Counter) {
		c.now = now
	}
}

// creates a counter enforcing the given policy table
func NewCounter(store kv.Store, policies Policies, opts ...CounterOption) *Counter {
	if _, ok := policies[DefaultEndpoint]; !ok {
		withDefault := Policies{DefaultEndpoint: DefaultPolicies()[DefaultEndpoint]}
		for endpoint, policy := range policies {
			withDefault[endpoint] = policy
		}
		policies = withDefault
	}

	c := &Counter{
		store:    store,
		policies: policies,
		ttl:      2 * policies.LongestWindow(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// returns the policy that governs an endpoint
func (c *Counter) Policy(endpoint string) Policy {
	return c.policies.Lookup(endpoint)
}

// records a request from clientID against endpoint and reports whether it may proceed.
// rejected requests do not change the window.
func (c *Counter) Check(ctx context.Context, clientID, endpoint string) (Result, error) {
	policy := c.policies.Lookup(endpoint)
	now := c.now()
	key := fmt.Sprintf(keyWindow, endpoint, clientID)

	fields, err := c.store.HGetAll(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	start, count, ok := parseWindow(fields)
	if !ok || !now.Before(start.Add(policy.Window)) {
		return c.openWindow(ctx, key, policy, now)
	}

	reset := start.Add(policy.Window)

	if count >= policy.Max {
		return rejected(policy, reset, now), nil
	}

	// the increment itself is atomic; a concurrent request may still have passed the
	// read above, so the new value is checked again and overshoot is undone
	n, err := c.store.HIncrBy(ctx, key, fieldCount, 1)
	if err != nil {
		return Result{}, fmt.Errorf("failed to increment rate limit window: %w", err)
	}

	if int(n) > policy.Max {
		if _, err := c.store.HIncrBy(ctx, key, fieldCount, -1); err != nil {
			return Result{}, fmt.Errorf("failed to undo rate limit increment: %w", err)
		}

		return rejected(policy, reset, now), nil
	}

	return Result{
		Allowed:   true,
		Remaining: policy.Max - int(n),
		Limit:     policy.Max,
		ResetTime: reset,
	}, nil
}

func (c *Counter) openWindow(ctx context.Context, key string, policy Policy, now time.Time) (Result, error) {
	err := c.store.HSet(ctx, key, map[string]string{
		fieldCount: "1",
		fieldStart: strconv.FormatInt(now.UnixMilli(), 10),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to open rate limit window: %w", err)
	}

	if err := c.store.Expire(ctx, key, c.ttl); err != nil {
		return Result{}, fmt.Errorf("failed to set rate limit window expiry: %w", err)
	}

	return Result{
		Allowed:   true,
		Remaining: policy.Max - 1,
		Limit:     policy.Max,
		ResetTime: now.Add(policy.Window),
	}, nil
}

func rejected(policy Policy, reset, now time.Time) Result {
	return Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      policy.Max,
		ResetTime:  reset,
		RetryAfter: RetryAfterSeconds(reset, now),
	}
}

// whole seconds until reset, rounded up and never below one
func RetryAfterSeconds(reset, now time.Time) int {
	seconds := int(math.Ceil(reset.Sub(now).Seconds()))
	if seconds < 1 {
		return 1
	}

	return seconds
}

func parseWindow(fields map[string]string) (time.Time, int, bool) {
	rawStart, okStart := fields[fieldStart]
	rawCount, okCount := fields[fieldCount]
	if !okStart || !okCount {
		return time.Time{}, 0, false
	}

	startMillis, err := strconv.ParseInt(rawStart, 10, 64)
	if err != nil {
		return time.Time{}, 0, false
	}

	count, err := strconv.Atoi(rawCount)
	if err != nil || count < 0 {
		return time.Time{}, 0, false
	}

	return time.UnixMilli(startMillis), count, true
}
