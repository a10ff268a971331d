package gate

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/errors"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/metrics"
	"codeberg.org/pdgen/server/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

const (
	// gin context key holding the *apikeys.Account of a gated request
	ContextAccount = "api_account"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderUsageLimit         = "X-Usage-Limit"
	HeaderUsageRemaining     = "X-Usage-Remaining"
	HeaderUsageReset         = "X-Usage-Reset"

	// gin context key holding the ledger months counted by Charge
	contextLedgerPeriods = "ledger_periods"

	// upper bound for refunds that outlive the request
	compensationTimeout = 5 * time.Second
)

// Gate runs the admission checks every protected route goes through before
// any upstream spend: the per-client window, the API key checks, and credit
// deduction. Each check aborts the chain with its own status on rejection.
type Gate struct {
	counter *ratelimit.Counter
	keys    *apikeys.Registry
	credits *credits.Store
	ledger  *credits.Ledger
	metrics *metrics.Metrics
}

// creates a new request gate; ledger and m may be nil
func New(counter *ratelimit.Counter, keys *apikeys.Registry, creditStore *credits.Store, ledger *credits.Ledger, m *metrics.Metrics) *Gate {
	return &Gate{
		counter: counter,
		keys:    keys,
		credits: creditStore,
		ledger:  ledger,
		metrics: m,
	}
}

// applies the window policy for endpoint, or for the matched route path when
// endpoint is empty. a store failure lets the request through.
func (g *Gate) Throttle(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := endpoint
		if name == "" {
			name = c.FullPath()
		}

		clientID := ratelimit.ClientID(c.Request)

		result, err := g.counter.Check(c.Request.Context(), clientID, name)
		if err != nil {
			g.metrics.Decision(metrics.CheckWindow, metrics.OutcomeError)
			logger.ErrorErr(err, "rate limit check failed", "endpoint", name)
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			g.metrics.Decision(metrics.CheckWindow, metrics.OutcomeRejected)
			logger.Warn("rate limit exceeded",
				"endpoint", name,
				"client", redactClient(clientID),
				"retry_after", result.RetryAfter,
			)
			errors.RateLimitExceeded(c, g.counter.Policy(name).Message, result.Limit, result.RetryAfter)
			return
		}

		g.metrics.Decision(metrics.CheckWindow, metrics.OutcomeAllowed)
		c.Next()
	}
}

// validates the X-API-Key header, then the key's per-minute and monthly
// limits. the account is stored on the context for handlers and Commit.
func (g *Gate) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		account, err := g.keys.Validate(ctx, c.GetHeader(ratelimit.HeaderAPIKey))
		if stderrors.Is(err, apikeys.ErrInvalidKey) {
			g.metrics.Decision(metrics.CheckAPIKey, metrics.OutcomeRejected)
			errors.InvalidAPIKey(c, "")
			return
		}

		if err != nil {
			g.metrics.Decision(metrics.CheckAPIKey, metrics.OutcomeError)
			errors.InternalError(c, "failed to validate API key", err)
			return
		}

		g.metrics.Decision(metrics.CheckAPIKey, metrics.OutcomeAllowed)

		rate, err := g.keys.CheckRateLimit(ctx, account)
		if err != nil {
			g.metrics.Decision(metrics.CheckAPIKeyRate, metrics.OutcomeError)
			errors.InternalError(c, "failed to check rate limit", err)
			return
		}

		setRateLimitHeaders(c, rate)

		if !rate.Allowed {
			g.metrics.Decision(metrics.CheckAPIKeyRate, metrics.OutcomeRejected)
			errors.RateLimitExceeded(c, "API key rate limit exceeded, please slow down.", rate.Limit, rate.RetryAfter)
			return
		}

		g.metrics.Decision(metrics.CheckAPIKeyRate, metrics.OutcomeAllowed)

		usage, err := g.keys.CheckUsageLimit(ctx, account)
		if err != nil {
			g.metrics.Decision(metrics.CheckAPIKeyUsage, metrics.OutcomeError)
			errors.InternalError(c, "failed to check usage limit", err)
			return
		}

		c.Header(HeaderUsageLimit, strconv.Itoa(usage.Limit))
		c.Header(HeaderUsageRemaining, strconv.Itoa(usage.Remaining))
		c.Header(HeaderUsageReset, usage.ResetAt.Format(time.RFC3339))

		if !usage.Allowed {
			g.metrics.Decision(metrics.CheckAPIKeyUsage, metrics.OutcomeRejected)
			errors.UsageLimitExceeded(c, usage.Limit, usage.Used)
			return
		}

		g.metrics.Decision(metrics.CheckAPIKeyUsage, metrics.OutcomeAllowed)

		c.Set(ContextAccount, account)
		c.Next()
	}
}

// returns the API key account placed on the context by RequireAPIKey
func Account(c *gin.Context) (*apikeys.Account, bool) {
	v, ok := c.Get(ContextAccount)
	if !ok {
		return nil, false
	}

	account, ok := v.(*apikeys.Account)
	return account, ok && account != nil
}

// records a completed API key request against the monthly quota
func (g *Gate) Commit(c *gin.Context) {
	account, ok := Account(c)
	if !ok {
		return
	}

	used, err := g.keys.IncrementUsage(c.Request.Context(), account.Key)
	if err != nil {
		logger.ErrorErr(err, "failed to record api key usage", "account_id", account.ID)
		return
	}

	account.Usage.CurrentMonth = used
	c.Header(HeaderUsageRemaining, strconv.Itoa(max(0, account.Limits.RequestsPerMonth-used)))
}

// counts the charges against the user's monthly caps and deducts their
// credits, all or nothing. on false the response has been written.
func (g *Gate) Charge(c *gin.Context, userID string, charges ...credits.Charge) bool {
	ctx := c.Request.Context()

	counted := make([]countedCharge, 0, len(charges))

	if g.ledger != nil {
		for _, ch := range charges {
			usage, err := g.ledger.CheckUsageLimit(ctx, userID, ch.Resource)
			if err != nil {
				g.release(c, userID, counted)
				g.metrics.Decision(metrics.CheckLedger, metrics.OutcomeError)
				errors.InternalError(c, "failed to check usage limit", err)
				return false
			}

			if !usage.Allowed {
				g.release(c, userID, counted)
				g.metrics.Decision(metrics.CheckLedger, metrics.OutcomeRejected)
				errors.UsageLimitExceeded(c, usage.Limit, usage.Used)
				return false
			}

			counted = append(counted, countedCharge{resource: ch.Resource, period: usage.Period})
		}

		g.metrics.Decision(metrics.CheckLedger, metrics.OutcomeAllowed)
	}

	if err := g.credits.DeductAll(ctx, userID, charges...); err != nil {
		g.release(c, userID, counted)

		var insufficient *credits.InsufficientCreditsError
		if stderrors.As(err, &insufficient) {
			g.metrics.Decision(metrics.CheckCredits, metrics.OutcomeRejected)
			errors.InsufficientCredits(c, string(insufficient.Resource), insufficient.Needed, insufficient.Available)
			return false
		}

		g.metrics.Decision(metrics.CheckCredits, metrics.OutcomeError)
		errors.InternalError(c, "failed to deduct credits", err)
		return false
	}

	g.metrics.Decision(metrics.CheckCredits, metrics.OutcomeAllowed)
	for _, ch := range charges {
		g.metrics.CreditsDeducted(string(ch.Resource), ch.Amount)
	}

	c.Set(contextLedgerPeriods, append(countedPeriods(c), counted...))

	return true
}

// returns credits and monthly counts for charges whose upstream call failed.
// runs to completion even when the client has gone away.
func (g *Gate) Refund(c *gin.Context, userID string, charges ...credits.Charge) {
	if len(charges) == 0 {
		return
	}

	ctx, cancel := compensationContext(c)
	defer cancel()

	if err := g.credits.Refund(ctx, userID, charges...); err != nil {
		logger.ErrorErrContext(ctx, err, "failed to refund credits", "user_id", userID)
	} else {
		for _, ch := range charges {
			g.metrics.CreditsRefunded(string(ch.Resource), ch.Amount)
		}
	}

	g.release(c, userID, takeCounted(c, charges))
}

// a charge counted by the ledger and the month it was counted in
type countedCharge struct {
	resource credits.Resource
	period   string
}

func (g *Gate) release(c *gin.Context, userID string, counted []countedCharge) {
	if g.ledger == nil || len(counted) == 0 {
		return
	}

	ctx, cancel := compensationContext(c)
	defer cancel()

	for _, ch := range counted {
		if err := g.ledger.Release(ctx, userID, ch.resource, ch.period); err != nil {
			logger.ErrorErrContext(ctx, err, "failed to release monthly usage",
				"user_id", userID,
				"resource", ch.resource,
			)
		}
	}
}

func compensationContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), compensationTimeout)
}

func countedPeriods(c *gin.Context) []countedCharge {
	v, _ := c.Get(contextLedgerPeriods)
	counted, _ := v.([]countedCharge)

	return counted
}

// removes and returns the counted entries matching charges. a charge with no
// recorded period is released against the current month.
func takeCounted(c *gin.Context, charges []credits.Charge) []countedCharge {
	remaining := countedPeriods(c)
	taken := make([]countedCharge, 0, len(charges))

	for _, ch := range charges {
		idx := -1
		for i, cc := range remaining {
			if cc.resource == ch.Resource {
				idx = i
				break
			}
		}

		if idx < 0 {
			taken = append(taken, countedCharge{resource: ch.Resource})
			continue
		}

		taken = append(taken, remaining[idx])
		remaining = append(remaining[:idx:idx], remaining[idx+1:]...)
	}

	c.Set(contextLedgerPeriods, remaining)

	return taken
}

func setRateLimitHeaders(c *gin.Context, result ratelimit.Result) {
	c.Header(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	c.Header(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	c.Header(HeaderRateLimitReset, strconv.FormatInt(result.ResetTime.Unix(), 10))
}

// keeps API keys out of the logs
func redactClient(clientID string) string {
	if strings.HasPrefix(clientID, apikeys.KeyPrefix) && len(clientID) > 12 {
		return clientID[:12] + "..."
	}

	return clientID
}
