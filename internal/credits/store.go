package credits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/plans"
)

const (
	keyCredits    = "credits:%s"
	keyUsageDaily = "usage_daily:%s:%s"

	fieldResetDate = "reset_date"

	cycleLength    = 30 * 24 * time.Hour
	dailyRetention = 90 * 24 * time.Hour
	dayLayout      = "2006-01-02"

	refundTimeout = 5 * time.Second
)

// resolves which plan a user is on
type PlanResolver interface {
	PlanOf(ctx context.Context, userID string) (plans.Plan, error)
}

// per-user credit balances kept in the key-value store
type Store struct {
	kv    kv.Store
	plans PlanResolver
	now   func() time.Time
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// overrides the clock, used by tests to move across reset dates
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// creates a new credit store
func NewStore(store kv.Store, resolver PlanResolver, opts ...Option) *Store {
	o := buildOptions(opts)

	return &Store{kv: store, plans: resolver, now: o.now}
}

// returns the user's balance, seeding it from their plan on first use and
// reseeding it wholesale once the reset date has passed. a stored balance
// that cannot be parsed is an error, never a reseed.
func (s *Store) GetCredits(ctx context.Context, userID string) (*Balance, error) {
	fields, err := s.kv.HGetAll(ctx, fmt.Sprintf(keyCredits, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load credits: %w", err)
	}

	if len(fields) == 0 {
		return s.Reset(ctx, userID)
	}

	balance, err := parseBalance(fields)
	if err != nil {
		return nil, fmt.Errorf("credits for %s: %w", userID, err)
	}

	if !s.now().Before(balance.ResetDate) {
		return s.Reset(ctx, userID)
	}

	return balance, nil
}

// starts a fresh credit cycle from the user's current plan
func (s *Store) Reset(ctx context.Context, userID string) (*Balance, error) {
	plan, err := s.plans.PlanOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}

	balance := &Balance{
		Amounts:   SeedFor(plan),
		ResetDate: s.now().UTC().Add(cycleLength),
	}

	values := map[string]string{fieldResetDate: balance.ResetDate.Format(time.RFC3339)}
	for _, r := range Resources {
		values[string(r)] = strconv.Itoa(balance.Get(r))
	}

	if err := s.kv.HSet(ctx, fmt.Sprintf(keyCredits, userID), values); err != nil {
		return nil, fmt.Errorf("failed to seed credits: %w", err)
	}

	return balance, nil
}

// takes amount credits of one resource and returns what remains. an unlimited
// balance is never decremented and reports -1.
func (s *Store) DeductCredits(ctx context.Context, userID string, resource Resource, amount int) (int, error) {
	if !resource.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := s.GetCredits(ctx, userID)
	if err != nil {
		return 0, err
	}

	current := balance.Get(resource)
	if current == plans.Unlimited {
		s.recordUsage(ctx, userID, resource, amount)
		return plans.Unlimited, nil
	}

	if current < amount {
		return current, &InsufficientCreditsError{Resource: resource, Needed: amount, Available: current}
	}

	key := fmt.Sprintf(keyCredits, userID)

	remaining, err := s.kv.HIncrBy(ctx, key, string(resource), -int64(amount))
	if err != nil {
		return 0, fmt.Errorf("failed to deduct credits: %w", err)
	}

	// a concurrent deduction won the race; put ours back
	if remaining < 0 {
		if _, err := s.kv.HIncrBy(ctx, key, string(resource), int64(amount)); err != nil {
			return 0, fmt.Errorf("failed to undo overdraft: %w", err)
		}

		available := int(remaining) + amount
		return available, &InsufficientCreditsError{Resource: resource, Needed: amount, Available: available}
	}

	s.recordUsage(ctx, userID, resource, amount)

	return int(remaining), nil
}

// returns credits to a balance; unlimited balances are left alone
func (s *Store) AddCredits(ctx context.Context, userID string, resource Resource, amount int) error {
	if !resource.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}

	if amount <= 0 {
		return ErrInvalidAmount
	}

	balance, err := s.GetCredits(ctx, userID)
	if err != nil {
		return err
	}

	if balance.Get(resource) == plans.Unlimited {
		return nil
	}

	if _, err := s.kv.HIncrBy(ctx, fmt.Sprintf(keyCredits, userID), string(resource), int64(amount)); err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}

	return nil
}

// deducts every charge in order. on the first failure all earlier charges are
// refunded and that failure is returned. the refund ignores cancellation of ctx.
func (s *Store) DeductAll(ctx context.Context, userID string, charges ...Charge) error {
	for i, ch := range charges {
		if _, err := s.DeductCredits(ctx, userID, ch.Resource, ch.Amount); err != nil {
			if i == 0 {
				return err
			}

			refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
			rerr := s.Refund(refundCtx, userID, charges[:i]...)
			cancel()

			if rerr != nil {
				return errors.Join(err, rerr)
			}

			return err
		}
	}

	return nil
}

// returns credits for charges whose operation did not go through
func (s *Store) Refund(ctx context.Context, userID string, charges ...Charge) error {
	var errs []error

	for _, ch := range charges {
		if err := s.AddCredits(ctx, userID, ch.Resource, ch.Amount); err != nil {
			errs = append(errs, fmt.Errorf("refund %s: %w", ch.Resource, err))
		}
	}

	return errors.Join(errs...)
}

// returns per-day usage for the last n days, oldest first
func (s *Store) UsageHistory(ctx context.Context, userID string, days int) ([]DailyUsage, error) {
	if days <= 0 {
		return []DailyUsage{}, nil
	}

	today := s.now().UTC()
	history := make([]DailyUsage, 0, days)

	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(dayLayout)

		fields, err := s.kv.HGetAll(ctx, fmt.Sprintf(keyUsageDaily, userID, date))
		if err != nil {
			return nil, fmt.Errorf("failed to load usage for %s: %w", date, err)
		}

		day := DailyUsage{Date: date}
		for _, r := range Resources {
			if n, err := strconv.Atoi(fields[string(r)]); err == nil {
				day.set(r, n)
			}
		}

		history = append(history, day)
	}

	return history, nil
}

// bumps the daily usage bucket. tracking is best effort: the deduction has
// already happened and must not be reported as failed.
func (s *Store) recordUsage(ctx context.Context, userID string, resource Resource, amount int) {
	key := fmt.Sprintf(keyUsageDaily, userID, s.now().UTC().Format(dayLayout))

	n, err := s.kv.HIncrBy(ctx, key, string(resource), int64(amount))
	if err == nil && n == int64(amount) {
		err = s.kv.Expire(ctx, key, dailyRetention)
	}

	if err != nil {
		logger.Warn("failed to record daily usage",
			"user_id", userID,
			"resource", resource,
			"error", err,
		)
	}
}

func parseBalance(fields map[string]string) (*Balance, error) {
	reset, err := time.Parse(time.RFC3339, fields[fieldResetDate])
	if err != nil {
		return nil, fmt.Errorf("%w: reset date %q", ErrCorruptBalance, fields[fieldResetDate])
	}

	balance := &Balance{ResetDate: reset}
	for _, r := range Resources {
		n, err := strconv.Atoi(fields[string(r)])
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrCorruptBalance, r, fields[string(r)])
		}

		balance.set(r, n)
	}

	return balance, nil
}
