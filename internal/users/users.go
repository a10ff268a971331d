package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/plans"
	"github.com/google/uuid"
)

const (
	keyUser      = "user:%s"
	keyUserEmail = "user_email:%s"
)

var ErrNotFound = errors.New("user not found")

// end-user account; a distinct identity space from API key accounts
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Plan          plans.Plan `json:"plan"`
	CreatedAt     time.Time  `json:"created_at"`
	PlanChangedAt time.Time  `json:"plan_changed_at"`
}

// handles user records in the key-value store
type Repository struct {
	store kv.Store
	now   func() time.Time
}

// creates a new user repository
func NewRepository(store kv.Store) *Repository {
	return &Repository{store: store, now: time.Now}
}

// finds a user by their ID
func (r *Repository) FindByID(ctx context.Context, userID string) (*User, error) {
	raw, err := r.store.Get(ctx, fmt.Sprintf(keyUser, userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &user, nil
}

// finds a user by email address
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	id, err := r.store.Get(ctx, fmt.Sprintf(keyUserEmail, normalizeEmail(email)))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to look up user email: %w", err)
	}

	return r.FindByID(ctx, id)
}

// creates a user on the given plan
func (r *Repository) Create(ctx context.Context, email string, plan plans.Plan) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if _, err := r.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("user with email %s already exists", email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := r.now().UTC()
	user := &User{
		ID:            uuid.NewString(),
		Email:         email,
		Plan:          plans.OrFree(plan),
		CreatedAt:     now,
		PlanChangedAt: now,
	}

	if err := r.save(ctx, user); err != nil {
		return nil, err
	}

	if err := r.store.Set(ctx, fmt.Sprintf(keyUserEmail, email), user.ID, 0); err != nil {
		return nil, fmt.Errorf("failed to index user email: %w", err)
	}

	return user, nil
}

// moves a user to another plan; the caller restarts their credit cycle
func (r *Repository) SetPlan(ctx context.Context, userID string, plan plans.Plan) (*User, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("unknown plan %q", plan)
	}

	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Plan = plan
	user.PlanChangedAt = r.now().UTC()

	if err := r.save(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// resolves the plan for a user id; unknown users are on the free plan
func (r *Repository) PlanOf(ctx context.Context, userID string) (plans.Plan, error) {
	user, err := r.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return plans.Free, nil
	}

	if err != nil {
		return "", err
	}

	return plans.OrFree(user.Plan), nil
}

func (r *Repository) save(ctx context.Context, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	if err := r.store.Set(ctx, fmt.Sprintf(keyUser, user.ID), string(data), 0); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
