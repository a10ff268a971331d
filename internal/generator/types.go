package generator

import (
	"context"
	"errors"
)

var (
	// returned when no image provider is configured
	ErrNotConfigured = errors.New("generation provider not configured")
	ErrMissingName   = errors.New("product name is required")
)

// represents different upstream providers
type Provider string

const (
	ProviderGemini   Provider = "gemini"
	ProviderOpenAI   Provider = "openai"
	ProviderTemplate Provider = "template"
)

// product attributes a description or image is generated from
type Product struct {
	Name           string
	Category       string
	TargetAudience string
	KeyFeatures    string
	Tone           string
}

type Image struct {
	URL   string `json:"url"`
	Style string `json:"style"`
	Model string `json:"model"`
}

// writes marketing copy for a product
type DescriptionWriter interface {
	WriteDescription(ctx context.Context, product Product) (string, error)
}

// renders a product image in the given style
type ImageGenerator interface {
	GenerateImage(ctx context.Context, product Product, style string) (Image, error)
}
