package bulk

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"codeberg.org/pdgen/server/internal/auth"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/errors"
	"codeberg.org/pdgen/server/internal/gate"
	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/usagelog"
	"github.com/gin-gonic/gin"
)

// Handler godoc
// @Summary Generate descriptions for a batch of products
// @Description Per-product failures are reported in results rather than failing the batch.
// @Description Signed-in users are charged one bulk credit per batch.
// @Tags generate
// @Accept json
// @Produce json
// @Param request body Request true "products to describe"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 402 {object} errors.InsufficientCreditsResponse
// @Failure 429 {object} errors.RateLimitResponse
// @Router /api/bulk-generate [post]
func Handler(g *gate.Gate, gen *generator.Service, rec usagelog.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Request

		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if len(req.Products) == 0 {
			errors.BadRequest(c, "products must contain at least one item", nil)
			return
		}

		if len(req.Products) > MaxProducts {
			errors.BadRequest(c, fmt.Sprintf("a batch may contain at most %d products", MaxProducts), nil)
			return
		}

		userID, authenticated := auth.GetUserID(c)
		charge := credits.Charge{Resource: credits.Bulk, Amount: 1}

		if authenticated && !g.Charge(c, userID, charge) {
			return
		}

		started := time.Now()

		products := make([]generator.Product, len(req.Products))
		for i, p := range req.Products {
			p.ProductName = strings.TrimSpace(p.ProductName)
			products[i] = p.toProduct()
		}

		outcomes := gen.DescribeBatch(c.Request.Context(), products, generator.DefaultBatchWorkers)

		resp := Response{
			Success: true,
			Results: make([]Result, len(outcomes)),
		}

		for i, out := range outcomes {
			result := Result{ProductName: out.Product.Name}

			if out.Err != nil {
				result.Error = itemError(out.Err)
				logger.Warn("bulk item failed",
					"index", i,
					"product", out.Product.Name,
					"error", out.Err,
				)
			} else {
				result.Description = out.Text
				result.Success = true
				resp.Successful++
			}

			resp.Results[i] = result
		}

		resp.Processed = len(outcomes)
		resp.ProcessingTime = time.Since(started).Milliseconds()

		// nothing was produced, so the batch is not billed
		if authenticated && resp.Successful == 0 {
			g.Refund(c, userID, charge)
		}

		if req.NotifyOnComplete {
			// delivery belongs to the email service; the request is only noted here
			logger.Info("bulk completion notification requested",
				"has_email", req.Email != "",
				"processed", resp.Processed,
				"successful", resp.Successful,
			)
		}

		entry := &usagelog.Entry{
			Route:       c.FullPath(),
			SubjectKind: usagelog.SubjectAnonymous,
			SubjectID:   c.ClientIP(),
			Provider:    "batch",
			Items:       resp.Successful,
			Failed:      resp.Processed - resp.Successful,
			Duration:    time.Since(started),
		}
		if authenticated {
			entry.SubjectKind = usagelog.SubjectUser
			entry.SubjectID = userID
		}

		usagelog.Save(c.Request.Context(), rec, entry)

		c.JSON(http.StatusOK, resp)
	}
}

// client-facing message for a failed item
func itemError(err error) string {
	if stderrors.Is(err, generator.ErrMissingName) {
		return "product_name is required"
	}

	return "description generation failed"
}
