package credits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/plans"
)

const (
	keyUsageMonthly = "usage:%s:%s:%s"
	monthLayout     = "2006-01"

	// outlives the month it counts
	monthlyRetention = 45 * 24 * time.Hour
)

// monthly per-resource operation counters, capped by plan
type Ledger struct {
	kv    kv.Store
	plans PlanResolver
	now   func() time.Time
}

// creates a new usage ledger
func NewLedger(store kv.Store, resolver PlanResolver, opts ...Option) *Ledger {
	o := buildOptions(opts)

	return &Ledger{kv: store, plans: resolver, now: o.now}
}

// counts one operation against the user's monthly cap. unlimited plans are
// not counted. an operation past the cap is undone and reported as not allowed.
func (l *Ledger) CheckUsageLimit(ctx context.Context, userID string, resource Resource) (UsageResult, error) {
	if !resource.Valid() {
		return UsageResult{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}

	limit, err := l.limit(ctx, userID, resource)
	if err != nil {
		return UsageResult{}, err
	}

	if limit == plans.Unlimited {
		return UsageResult{Allowed: true, Remaining: plans.Unlimited, Limit: plans.Unlimited}, nil
	}

	period := l.period()
	key := l.keyFor(userID, resource, period)

	used, err := kv.Incr(ctx, l.kv, key)
	if err != nil {
		return UsageResult{}, fmt.Errorf("failed to count usage: %w", err)
	}

	if used == 1 {
		if err := l.kv.Expire(ctx, key, monthlyRetention); err != nil {
			return UsageResult{}, fmt.Errorf("failed to set usage expiry: %w", err)
		}
	}

	if int(used) > limit {
		if _, err := l.kv.IncrBy(ctx, key, -1); err != nil {
			return UsageResult{}, fmt.Errorf("failed to undo usage: %w", err)
		}

		return UsageResult{Allowed: false, Remaining: 0, Limit: limit, Used: int(used) - 1, Period: period}, nil
	}

	return UsageResult{Allowed: true, Remaining: limit - int(used), Limit: limit, Used: int(used), Period: period}, nil
}

// gives back one operation counted in period (a UsageResult.Period, or the
// current month when empty). a counter that is gone or already at zero is
// left alone.
func (l *Ledger) Release(ctx context.Context, userID string, resource Resource, period string) error {
	limit, err := l.limit(ctx, userID, resource)
	if err != nil {
		return err
	}

	if limit == plans.Unlimited {
		return nil
	}

	if period == "" {
		period = l.period()
	}

	key := l.keyFor(userID, resource, period)

	if _, err := l.kv.Get(ctx, key); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("failed to load usage: %w", err)
	}

	n, err := l.kv.IncrBy(ctx, key, -1)
	if err != nil {
		return fmt.Errorf("failed to release usage: %w", err)
	}

	if n < 0 {
		if _, err := l.kv.IncrBy(ctx, key, -n); err != nil {
			return fmt.Errorf("failed to clamp usage: %w", err)
		}
	}

	return nil
}

// returns how many operations were counted this month
func (l *Ledger) Used(ctx context.Context, userID string, resource Resource) (int, error) {
	raw, err := l.kv.Get(ctx, l.keyFor(userID, resource, l.period()))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("failed to load usage: %w", err)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse usage: %w", err)
	}

	return n, nil
}

func (l *Ledger) limit(ctx context.Context, userID string, resource Resource) (int, error) {
	plan, err := l.plans.PlanOf(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve plan: %w", err)
	}

	return CapsFor(plan).Get(resource), nil
}

func (l *Ledger) period() string {
	return l.now().UTC().Format(monthLayout)
}

func (l *Ledger) keyFor(userID string, resource Resource, period string) string {
	return fmt.Sprintf(keyUsageMonthly, userID, resource, period)
}
