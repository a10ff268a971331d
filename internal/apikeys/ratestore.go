package apikeys

import (
	"fmt"
	"time"

	"codeberg.org/pdgen/server/internal/kv"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// prefix of the per-minute API key counters
const ratePrefix = "apikey_rate"

// returns the store backing the per-minute key limits. counters share redis
// when the accounting store is redis, otherwise they stay in process.
func NewRateStore(store kv.Store) (limiter.Store, error) {
	if rs, ok := store.(*kv.RedisStore); ok {
		rateStore, err := sredis.NewStoreWithOptions(rs.Client(), limiter.StoreOptions{
			Prefix:   ratePrefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create api key rate store: %w", err)
		}

		return rateStore, nil
	}

	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          ratePrefix,
		CleanUpInterval: time.Minute,
	}), nil
}
