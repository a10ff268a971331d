package config

import "time"

type Config struct {
	Port        string
	Environment string
	JWTSecret   string

	// key-value store selection, first match wins: redis, REST KV, memory
	RedisURL        string
	KVRestURL       string
	KVRestToken     string
	DatabaseURL     string
	PolicyFile      string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
}

// which backing store the server should open
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreRedis  StoreKind = "redis"
	StoreREST   StoreKind = "rest"
)

// a single rate limit override read from the policy file
type PolicyOverride struct {
	Endpoint string `yaml:"endpoint"`
	Window   string `yaml:"window"`
	Max      int    `yaml:"max"`
	Message  string `yaml:"message"`
}

type PolicyFile struct {
	Policies []PolicyOverride `yaml:"policies"`
}
