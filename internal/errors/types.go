package errors

// represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`             // error code or title (e.g., "unauthorized", "Authentication failed")
	Message string `json:"message"`           // user-friendly message
	Details string `json:"details,omitempty"` // optional details (sanitized in production)
}

// returned when a request-velocity window is exhausted
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
	Limit      int    `json:"limit"`
}

// returned when an API key has used its monthly quota
type UsageLimitResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Limit   int    `json:"limit"`
	Used    int    `json:"used"`
}

// returned when a user lacks credits for a resource
type InsufficientCreditsResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	Resource         string `json:"resource"`
	CreditsNeeded    int    `json:"creditsNeeded"`
	CreditsAvailable int    `json:"creditsAvailable"`
}

type ErrorInfo struct {
	category  string
	sanitized string
}
