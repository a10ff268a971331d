package developer

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"codeberg.org/pdgen/server/internal/apikeys"
	"codeberg.org/pdgen/server/internal/errors"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/ratelimit"
	"codeberg.org/pdgen/server/internal/usagelog"
	"github.com/gin-gonic/gin"
)

const serviceVersion = "1.0.0"

// GenerateHandler godoc
// @Summary Generate descriptions with an API key
// @Description Batch size is capped by the key's plan. One request counts once against the monthly quota.
// @Tags api
// @Accept json
// @Produce json
// @Param X-API-Key header string true "API key"
// @Param request body GenerateRequest true "products to describe"
// @Success 200 {object} GenerateResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 429 {object} errors.UsageLimitResponse
// @Router /api/v1/generate [post]
func GenerateHandler(g *gate.Gate, gen *generator.Service, rec usagelog.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := gate.Account(c)
		if !ok {
			errors.InvalidAPIKey(c, "")
			return
		}

		var req GenerateRequest

		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		maxBatch := apikeys.MaxBatchSize(account.Plan)
		if len(req.Products) > maxBatch {
			errors.BadRequest(c,
				fmt.Sprintf("batch of %d products exceeds the %s plan limit of %d", len(req.Products), account.Plan, maxBatch),
				nil,
			)
			return
		}

		started := time.Now()

		products := make([]generator.Product, len(req.Products))
		for i, p := range req.Products {
			products[i] = p.toProduct(req.Tone)
		}

		outcomes := gen.DescribeBatch(c.Request.Context(), products, generator.DefaultBatchWorkers)

		resp := GenerateResponse{
			Success: true,
			Results: []GenerateResult{},
		}

		for i, out := range outcomes {
			if out.Err != nil {
				resp.Errors = append(resp.Errors, GenerateError{
					Index:       i,
					ProductName: out.Product.Name,
					Error:       itemError(out.Err),
				})

				logger.Warn("api item failed",
					"account_id", account.ID,
					"index", i,
					"error", out.Err,
				)
				continue
			}

			resp.Results = append(resp.Results, GenerateResult{
				ProductName: out.Product.Name,
				Description: out.Text,
			})
		}

		resp.Success = len(resp.Results) > 0
		resp.Metadata = Metadata{
			Processed:      len(outcomes),
			Successful:     len(resp.Results),
			Failed:         len(resp.Errors),
			Plan:           account.Plan,
			ProcessingTime: time.Since(started).Milliseconds(),
			Timestamp:      time.Now().UTC(),
		}

		// only requests that produced something count against the quota
		if resp.Success {
			g.Commit(c)
		}

		usagelog.Save(c.Request.Context(), rec, &usagelog.Entry{
			Route:       c.FullPath(),
			SubjectKind: usagelog.SubjectAPIKey,
			SubjectID:   account.ID,
			Provider:    "batch",
			Items:       resp.Metadata.Successful,
			Failed:      resp.Metadata.Failed,
			Duration:    time.Since(started),
		})

		c.JSON(http.StatusOK, resp)
	}
}

// StatusHandler godoc
// @Summary Service status, or the usage snapshot of an API key
// @Tags api
// @Produce json
// @Param X-API-Key header string false "API key"
// @Success 200 {object} StatusResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /api/v1/status [get]
func StatusHandler(keys *apikeys.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(ratelimit.HeaderAPIKey)

		if key == "" {
			c.JSON(http.StatusOK, ServiceStatus{
				Status:  "operational",
				Version: serviceVersion,
				Endpoints: []string{
					"POST /api/v1/generate",
					"GET /api/v1/status",
				},
				Timestamp: time.Now().UTC(),
			})
			return
		}

		ctx := c.Request.Context()

		account, err := keys.Validate(ctx, key)
		if stderrors.Is(err, apikeys.ErrInvalidKey) {
			errors.InvalidAPIKey(c, "")
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to validate API key", err)
			return
		}

		usage, err := keys.CheckUsageLimit(ctx, account)
		if err != nil {
			errors.InternalError(c, "failed to load usage", err)
			return
		}

		c.JSON(http.StatusOK, StatusResponse{
			Status: "active",
			Account: AccountSummary{
				ID:      account.ID,
				Name:    account.Name,
				Plan:    account.Plan,
				Created: account.Created,
			},
			Usage: UsageSummary{
				CurrentMonth:   usage.Used,
				MonthlyLimit:   usage.Limit,
				Remaining:      usage.Remaining,
				PercentageUsed: percentage(usage.Used, usage.Limit),
				ResetDate:      usage.ResetAt,
			},
			RateLimits: RateLimits{
				RequestsPerMinute: account.Limits.RequestsPerMinute,
				RequestsPerMonth:  account.Limits.RequestsPerMonth,
				MaxBatchSize:      apikeys.MaxBatchSize(account.Plan),
			},
		})
	}
}

// share of the limit used, rounded to two decimals
func percentage(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}

	return math.Round(float64(used)/float64(limit)*10000) / 100
}

func itemError(err error) string {
	if stderrors.Is(err, generator.ErrMissingName) {
		return "product_name is required"
	}

	return "description generation failed"
}
