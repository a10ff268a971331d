package errors

import (
	"net/http"
	"strconv"
	"strings"

	"codeberg.org/pdgen/server/internal/logger"
	"github.com/gin-gonic/gin"
)

// Error Handling Guidelines:
//
// For HTTP REST handlers:
//   - Use errors.InternalError(), errors.BadRequest(), etc. for critical errors
//     These functions handle both logging and HTTP response automatically
//   - Use logger.ErrorErr() only for non-critical errors where processing continues
//   - Never call both logger.ErrorErr() and errors.InternalError() for the same error
//
// For gate middleware:
//   - Use the taxonomy helpers (RateLimitExceeded, UsageLimitExceeded, InvalidAPIKey,
//     InsufficientCredits); they abort the chain so no external spend happens afterwards
//
// For services/repositories/internal packages:
//   - Return wrapped errors with context using fmt.Errorf("context: %w", err)
//   - Let the caller (handler) decide how to log and respond
//   - Do not log errors in non-handler code (avoid double logging)

// standard error codes
const (
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeValidationError = "validation_error"
	CodeServerError     = "server_error"
	CodeBadRequest      = "bad_request"
	CodeTooManyRequests = "too_many_requests"
)

// titles used by the gate responses, clients match on these strings
const (
	TitleRateLimitExceeded   = "Rate limit exceeded"
	TitleUsageLimitExceeded  = "Usage limit exceeded"
	TitleAuthFailed          = "Authentication failed"
	TitleInsufficientCredits = "Insufficient credits"
)

// returns a 401 unauthorized error
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:   CodeUnauthorized,
		Message: message,
	})
}

// returns a 401 for a missing, unknown or malformed API key
func InvalidAPIKey(c *gin.Context, message string) {
	if message == "" {
		message = "Invalid API key"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:   TitleAuthFailed,
		Message: message,
	})
}

// returns a 429 with Retry-After for an exhausted request window
func RateLimitExceeded(c *gin.Context, message string, limit, retryAfter int) {
	if message == "" {
		message = "Too many requests, please try again later."
	}

	if retryAfter < 1 {
		retryAfter = 1
	}

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
		Error:      TitleRateLimitExceeded,
		Message:    message,
		RetryAfter: retryAfter,
		Limit:      limit,
	})
}

// returns a 429 for an exhausted monthly quota
func UsageLimitExceeded(c *gin.Context, limit, used int) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, UsageLimitResponse{
		Error:   TitleUsageLimitExceeded,
		Message: "Monthly usage limit reached. Upgrade your plan or wait for the next billing month.",
		Limit:   limit,
		Used:    used,
	})
}

// returns a 402 naming the resource that ran short
func InsufficientCredits(c *gin.Context, resource string, needed, available int) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, InsufficientCreditsResponse{
		Error:            TitleInsufficientCredits,
		Message:          "Not enough " + resource + " credits remaining",
		Resource:         resource,
		CreditsNeeded:    needed,
		CreditsAvailable: available,
	})
}

// returns a 404 not found error
func NotFound(c *gin.Context, resource string) {
	message := "resource not found"

	if resource != "" {
		message = resource + " not found"
	}

	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeNotFound,
		Message: message,
	})
}

// returns a 400 bad request error
func BadRequest(c *gin.Context, message string, err error) {
	if message == "" {
		message = "invalid request"
	}

	response := ErrorResponse{
		Error:   CodeBadRequest,
		Message: message,
	}

	if err != nil {
		response.Details = sanitizeError(err)
	}

	c.JSON(http.StatusBadRequest, response)
}

// returns a 400 bad request error for validation failures
func ValidationError(c *gin.Context, err error) {
	message := "validation failed"
	details := ""

	if err != nil {
		details = sanitizeError(err)
		if strings.Contains(err.Error(), "binding") || strings.Contains(err.Error(), "validation") {
			message = "request validation failed"
		}
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidationError,
		Message: message,
		Details: details,
	})
}

// returns a 500 internal server error
func InternalError(c *gin.Context, message string, err error) {
	if message == "" {
		message = "an error occurred"
	}

	// log full error server-side with context
	logger.ErrorErrContext(c.Request.Context(), err, message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"user_id", c.GetString("user_id"),
	)

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error:   CodeServerError,
		Message: message,
		Details: sanitizeError(err),
	})
}

// sanitizes error messages for production
func sanitizeError(err error) string {
	return classifyError(err).sanitized
}

// reports the classification category of an error, used for log fields
func Category(err error) string {
	return classifyError(err).category
}
