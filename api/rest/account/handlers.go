package account

import (
	stderrors "errors"
	"net/http"

	"codeberg.org/pdgen/server/internal/auth"
	"codeberg.org/pdgen/server/internal/credits"
	"codeberg.org/pdgen/server/internal/errors"
	"codeberg.org/pdgen/server/internal/plans"
	"codeberg.org/pdgen/server/internal/users"
	"github.com/gin-gonic/gin"
)

// GetCredits godoc
// @Summary Get the user's credit balance
// @Description Returns the current balance, the last seven days of usage and the user's plan
// @Tags account
// @Produce json
// @Success 200 {object} CreditsResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/auth/credits [get]
// @Security BearerAuth
func GetCredits(creditStore *credits.Store, userRepo *users.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c)
		if !ok {
			errors.Unauthorized(c, "user not authenticated")
			return
		}

		ctx := c.Request.Context()

		summary := UserSummary{ID: userID, Plan: plans.Free}

		user, err := userRepo.FindByID(ctx, userID)
		switch {
		case err == nil:
			summary.Email = user.Email
			summary.Plan = plans.OrFree(user.Plan)
			summary.CreatedAt = &user.CreatedAt
		case !stderrors.Is(err, users.ErrNotFound):
			errors.InternalError(c, "failed to load user", err)
			return
		}

		balance, err := creditStore.GetCredits(ctx, userID)
		if err != nil {
			errors.InternalError(c, "failed to load credits", err)
			return
		}

		history, err := creditStore.UsageHistory(ctx, userID, historyDays)
		if err != nil {
			errors.InternalError(c, "failed to load usage history", err)
			return
		}

		c.JSON(http.StatusOK, CreditsResponse{
			Success: true,
			Credits: balance,
			Usage:   history,
			User:    summary,
		})
	}
}
