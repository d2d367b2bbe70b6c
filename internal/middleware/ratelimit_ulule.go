package middleware

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/propcrm/realty-agent/internal/request"
)

// DefaultWebhookRate is used when WEBHOOK_RATE_LIMIT is empty
const DefaultWebhookRate = "20-S"

// KeyFunc picks the bucket a request counts against
type KeyFunc func(r *http.Request) string

// ClientIPKey limits per client address
func ClientIPKey(r *http.Request) string {
	return request.ClientIP(r)
}

// RateLimit returns ulule/limiter middleware for a formatted rate such as
// "20-S" or "1000-H". With a nil redisClient the counters are kept in memory,
// which is only correct for a single server replica.
func RateLimit(redisClient *redis.Client, rate, prefix string, key KeyFunc) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultWebhookRate
	}
	if key == nil {
		key = ClientIPKey
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}

	mw := stdlibmw.NewMiddleware(limiter.New(store, parsed), stdlibmw.WithKeyGetter(stdlibmw.KeyGetter(key)))
	return mw.Handler, nil
}
