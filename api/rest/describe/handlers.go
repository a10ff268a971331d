package describe

import (
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
// @Summary Generate a product description
// @Description Writes a description and optionally one product image. Signed-in users are charged
// @Description one description credit and, when an image is requested, one image credit.
// @Tags generate
// @Accept json
// @Produce json
// @Param request body Request true "product details"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 402 {object} errors.InsufficientCreditsResponse
// @Failure 429 {object} errors.RateLimitResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/generate-description [post]
func Handler(g *gate.Gate, gen *generator.Service, rec usagelog.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Request

		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		req.ProductName = strings.TrimSpace(req.ProductName)
		if req.ProductName == "" {
			errors.BadRequest(c, "productName is required", nil)
			return
		}

		if req.ImagesOnly && !gen.ImagesEnabled() {
			errors.InternalError(c, "image generation is not available", generator.ErrNotConfigured)
			return
		}

		userID, authenticated := auth.GetUserID(c)

		descriptionCharge := credits.Charge{Resource: credits.Descriptions, Amount: 1}
		imageCharge := credits.Charge{Resource: credits.Images, Amount: 1}

		var charges []credits.Charge
		if req.wantsDescription() {
			charges = append(charges, descriptionCharge)
		}
		if req.wantsImage() && gen.ImagesEnabled() {
			charges = append(charges, imageCharge)
		}

		if authenticated && !g.Charge(c, userID, charges...) {
			return
		}

		ctx := c.Request.Context()
		started := time.Now()
		product := req.product()

		resp := Response{
			Success:      true,
			Descriptions: []string{},
			Images:       []generator.Image{},
		}

		provider := string(generator.ProviderTemplate)

		if req.wantsDescription() {
			desc := gen.Describe(ctx, product)
			resp.Descriptions = append(resp.Descriptions, desc.Text)
			provider = string(desc.Provider)
		}

		if req.wantsImage() {
			img, err := gen.Image(ctx, product, generator.DefaultImageStyle)

			switch {
			case err == nil:
				resp.Images = append(resp.Images, img)
			case req.ImagesOnly:
				if authenticated {
					g.Refund(c, userID, imageCharge)
				}

				errors.InternalError(c, "image generation failed", err)
				return
			default:
				if authenticated && gen.ImagesEnabled() {
					g.Refund(c, userID, imageCharge)
				}

				logger.Warn("image generation failed, returning description only",
					"product", product.Name,
					"error", err,
				)
				resp.Warnings = append(resp.Warnings, "image generation failed")
			}
		}

		entry := &usagelog.Entry{
			Route:       c.FullPath(),
			SubjectKind: usagelog.SubjectAnonymous,
			SubjectID:   c.ClientIP(),
			Provider:    provider,
			Items:       len(resp.Descriptions) + len(resp.Images),
			Duration:    time.Since(started),
		}
		if authenticated {
			entry.SubjectKind = usagelog.SubjectUser
			entry.SubjectID = userID
		}

		usagelog.Save(ctx, rec, entry)

		resp.Timestamp = time.Now().UTC()
		c.JSON(http.StatusOK, resp)
	}
}
