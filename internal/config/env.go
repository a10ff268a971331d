package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	kvURL := os.Getenv("KV_REST_API_URL")
	kvToken := os.Getenv("KV_REST_API_TOKEN")

	if (kvURL == "") != (kvToken == "") {
		return nil, fmt.Errorf("KV_REST_API_URL and KV_REST_API_TOKEN must be set together")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		JWTSecret:       jwtSecret,
		RedisURL:        os.Getenv("REDIS_URL"),
		KVRestURL:       kvURL,
		KVRestToken:     kvToken,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		PolicyFile:      os.Getenv("RATE_LIMIT_POLICY_FILE"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "*")),
		ShutdownTimeout: 10 * time.Second,
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
	}, nil
}

// reports which store the configuration selects
func (c *Config) StoreKind() StoreKind {
	switch {
	case c.RedisURL != "":
		return StoreRedis
	case c.KVRestURL != "" && c.KVRestToken != "":
		return StoreREST
	default:
		return StoreMemory
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// reads rate limit overrides from a YAML file
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for i, p := range file.Policies {
		if p.Endpoint == "" {
			return nil, fmt.Errorf("policy %d: endpoint is required", i)
		}

		if p.Max <= 0 {
			return nil, fmt.Errorf("policy %q: max must be positive", p.Endpoint)
		}

		if _, err := time.ParseDuration(p.Window); err != nil {
			return nil, fmt.Errorf("policy %q: invalid window: %w", p.Endpoint, err)
		}
	}

	return &file, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
