package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/auth"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/plans"
	"codeberg.org/pdgen/server/internal/users"
)

// upper bound for a single command against the store
const commandTimeout = 10 * time.Second

type KeyCmd struct {
	Create KeyCreateCmd `cmd:"" help:"Create a new API key."`
	Show   KeyShowCmd   `cmd:"" help:"Show the account and usage of a key."`
	Revoke KeyRevokeCmd `cmd:"" help:"Revoke a key."`
}

type KeyCreateCmd struct {
	Name  string `required:"" help:"Account name."`
	Email string `help:"Contact email."`
	Plan  string `default:"free" enum:"free,starter,professional,enterprise" help:"Plan of the key."`
}

func (c *KeyCreateCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	key, account, err := a.keys.CreateAPIKey(ctx, apikeys.AccountData{
		Name:  c.Name,
		Email: c.Email,
		Plan:  plans.Plan(c.Plan),
	})
	if err != nil {
		return err
	}

	// the key is only shown once
	fmt.Fprintf(a.out, "key: %s\n", key)
	return a.print(account)
}

type KeyShowCmd struct {
	Key string `arg:"" help:"API key."`
}

// keyStatus is the printed snapshot of a key
type keyStatus struct {
	Account   *apikeys.Account `json:"account"`
	Used      int              `json:"used"`
	Remaining int              `json:"remaining"`
	ResetDate time.Time        `json:"resetDate"`
}

func (c *KeyShowCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	account, err := a.keys.Validate(ctx, c.Key)
	if err != nil {
		return err
	}

	usage, err := a.keys.CheckUsageLimit(ctx, account)
	if err != nil {
		return err
	}

	return a.print(keyStatus{
		Account:   account,
		Used:      usage.Used,
		Remaining: usage.Remaining,
		ResetDate: usage.ResetAt,
	})
}

type KeyRevokeCmd struct {
	Key string `arg:"" help:"API key."`
}

func (c *KeyRevokeCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := a.keys.Validate(ctx, c.Key); err != nil {
		return err
	}

	if err := a.keys.Revoke(ctx, c.Key); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "revoked")
	return nil
}

type UserCmd struct {
	Create  UserCreateCmd  `cmd:"" help:"Create a user."`
	SetPlan UserSetPlanCmd `cmd:"" name:"set-plan" help:"Change a user's plan and start a new credit cycle."`
	Credits UserCreditsCmd `cmd:"" help:"Show a user's credit balance."`
}

type UserCreateCmd struct {
	Email string `arg:"" help:"Email address."`
	Plan  string `default:"free" enum:"free,starter,professional,enterprise" help:"Initial plan."`
}

func (c *UserCreateCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user, err := a.users.Create(ctx, c.Email, plans.Plan(c.Plan))
	if err != nil {
		return err
	}

	// the credit cycle starts at signup
	balance, err := a.credits.Reset(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("user created but credits were not seeded: %w", err)
	}

	return a.print(userWithCredits{user, balance})
}

type userWithCredits struct {
	User    *users.User      `json:"user"`
	Credits *credits.Balance `json:"credits"`
}

type UserSetPlanCmd struct {
	UserID string `arg:"" name:"user-id" help:"User ID."`
	Plan   string `arg:"" enum:"free,starter,professional,enterprise" help:"New plan."`
}

func (c *UserSetPlanCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user, err := a.users.SetPlan(ctx, c.UserID, plans.Plan(c.Plan))
	if err != nil {
		return err
	}

	balance, err := a.credits.Reset(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("plan changed but credits were not reset: %w", err)
	}

	return a.print(userWithCredits{user, balance})
}

type UserCreditsCmd struct {
	UserID string `arg:"" name:"user-id" help:"User ID."`
}

func (c *UserCreditsCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := a.users.FindByID(ctx, c.UserID); errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("user %s not found", c.UserID)
	} else if err != nil {
		return err
	}

	balance, err := a.credits.GetCredits(ctx, c.UserID)
	if err != nil {
		return err
	}

	return a.print(balance)
}

type TokenCmd struct {
	UserID string        `arg:"" name:"user-id" help:"User ID."`
	Email  string        `arg:"" help:"Email address."`
	TTL    time.Duration `name:"ttl" default:"168h" help:"Token lifetime."`
}

// JWT_SECRET must match the server's
func (c *TokenCmd) Run(a *app) error {
	token, err := auth.IssueToken(c.UserID, c.Email, c.TTL)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, token)
	return nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
