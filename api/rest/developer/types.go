package developer

import (
	"time"

	"codeberg.org/pdgen/server/internal/generator"
	"codeberg.org/pdgen/server/internal/plans"
)

type Product struct {
	ProductName    string `json:"product_name"`
	Category       string `json:"category"`
	TargetAudience string `json:"target_audience"`
	Features       string `json:"features"`
	Tone           string `json:"tone"`
}

// GenerateRequest represents an API batch; tone applies to products without their own
type GenerateRequest struct {
	Products []Product `json:"products" binding:"required,min=1"`
	Tone     string    `json:"tone"`
}

type GenerateResult struct {
	ProductName string `json:"product_name"`
	Description string `json:"description"`
}

type GenerateError struct {
	Index       int    `json:"index"`
	ProductName string `json:"product_name"`
	Error       string `json:"error"`
}

type Metadata struct {
	Processed      int        `json:"processed"`
	Successful     int        `json:"successful"`
	Failed         int        `json:"failed"`
	Plan           plans.Plan `json:"plan"`
	ProcessingTime int64      `json:"processing_time_ms"`
	Timestamp      time.Time  `json:"timestamp"`
}

// GenerateResponse represents the results of an API batch
type GenerateResponse struct {
	Success  bool             `json:"success"`
	Results  []GenerateResult `json:"results"`
	Errors   []GenerateError  `json:"errors,omitempty"`
	Metadata Metadata         `json:"metadata"`
}

type AccountSummary struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Plan    plans.Plan `json:"plan"`
	Created time.Time  `json:"created"`
}

type UsageSummary struct {
	CurrentMonth   int       `json:"current_month"`
	MonthlyLimit   int       `json:"monthly_limit"`
	Remaining      int       `json:"remaining"`
	PercentageUsed float64   `json:"percentage_used"`
	ResetDate      time.Time `json:"reset_date"`
}

type RateLimits struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerMonth  int `json:"requests_per_month"`
	MaxBatchSize      int `json:"max_batch_size"`
}

// StatusResponse represents the usage snapshot of a key
type StatusResponse struct {
	Status     string         `json:"status"`
	Account    AccountSummary `json:"account"`
	Usage      UsageSummary   `json:"usage"`
	RateLimits RateLimits     `json:"rate_limits"`
}

// ServiceStatus represents the status returned without a key
type ServiceStatus struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Endpoints []string  `json:"endpoints"`
	Timestamp time.Time `json:"timestamp"`
}

func (p Product) toProduct(defaultTone string) generator.Product {
	tone := p.Tone
	if tone == "" {
		tone = defaultTone
	}

	return generator.Product{
		Name:           p.ProductName,
		Category:       p.Category,
		TargetAudience: p.TargetAudience,
		KeyFeatures:    p.Features,
		Tone:           tone,
	}
}
