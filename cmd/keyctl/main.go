// Command keyctl provisions API keys and manages user plans against the
// server's key-value store.
//
// Usage:
//
//	keyctl key create --name "Acme Shop" --email ops@acme.test --plan starter
//	keyctl key show pdg_...
//	keyctl user set-plan 3f1c... professional
//	keyctl token 3f1c... ops@acme.test
package main

import (
	"io"
	"os"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/config"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/kv"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/users"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// CLI defines the command-line interface.
type CLI struct {
	Key   KeyCmd   `cmd:"" help:"Manage API keys."`
	User  UserCmd  `cmd:"" help:"Manage users and their plans."`
	Token TokenCmd `cmd:"" help:"Issue a bearer token for a user."`

	RedisURL    string `name:"redis-url" env:"REDIS_URL" help:"Redis connection URL."`
	KVRestURL   string `name:"kv-rest-url" env:"KV_REST_API_URL" help:"REST key-value store URL."`
	KVRestToken string `name:"kv-rest-token" env:"KV_REST_API_TOKEN" help:"REST key-value store token."`
}

func (c *CLI) config() *config.Config {
	return &config.Config{
		RedisURL:    c.RedisURL,
		KVRestURL:   c.KVRestURL,
		KVRestToken: c.KVRestToken,
	}
}

// services shared by every command
type app struct {
	store   kv.Store
	keys    *apikeys.Registry
	users   *users.Repository
	credits *credits.Store
	out     io.Writer
}

func newApp(store kv.Store, out io.Writer) (*app, error) {
	rateStore, err := apikeys.NewRateStore(store)
	if err != nil {
		return nil, err
	}

	userRepo := users.NewRepository(store)

	return &app{
		store:   store,
		keys:    apikeys.NewRegistry(store, rateStore),
		users:   userRepo,
		credits: credits.NewStore(store, userRepo),
		out:     out,
	}, nil
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("keyctl"),
		kong.Description("Provision API keys and manage plans for the description service."),
		kong.UsageOnError(),
	)

	cfg := cli.config()
	if cfg.StoreKind() == config.StoreMemory {
		logger.Warn("no store configured, changes will be lost when keyctl exits")
	}

	store, err := kv.Open(cfg)
	ctx.FatalIfErrorf(err)

	a, err := newApp(store, os.Stdout)
	ctx.FatalIfErrorf(err)

	err = ctx.Run(a)
	if closeErr := store.Close(); closeErr != nil {
		logger.ErrorErr(closeErr, "failed to close store")
	}

	ctx.FatalIfErrorf(err)
}
