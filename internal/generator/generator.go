package generator

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/pdgen/server/internal/config"
	"codeberg.org/pdgen/server/internal/logger"
	"codeberg.org/pdgen/server/internal/metrics"
)

// style used for the single image of a description request
const DefaultImageStyle = "studio product"

// generated description and the provider that produced it
type Description struct {
	Text     string
	Provider Provider
}

// fronts the upstream providers. either provider may be absent.
type Service struct {
	writer  DescriptionWriter
	images  ImageGenerator
	metrics *metrics.Metrics
}

// creates a service over explicit providers; nil providers are allowed
func New(writer DescriptionWriter, images ImageGenerator, m *metrics.Metrics) *Service {
	return &Service{writer: writer, images: images, metrics: m}
}

// creates a service with the providers that have API keys configured
func NewFromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Service, error) {
	var writer DescriptionWriter

	if cfg.GeminiAPIKey != "" {
		gemini, err := NewGeminiWriter(ctx, GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create description writer: %w", err)
		}

		writer = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, descriptions will use templates")
	}

	var images ImageGenerator

	if cfg.OpenAIAPIKey != "" {
		images = NewOpenAIImages(OpenAIConfig{APIKey: cfg.OpenAIAPIKey})
	} else {
		logger.Warn("OPENAI_API_KEY not set, image generation disabled")
	}

	return New(writer, images, m), nil
}

// writes a description, substituting the template when the upstream call fails
func (s *Service) Describe(ctx context.Context, product Product) Description {
	text, err := s.DescribeStrict(ctx, product)
	if err != nil {
		logger.Warn("description generation failed, using template",
			"product", product.Name,
			"error", err,
		)

		return Description{Text: TemplateDescription(product), Provider: ProviderTemplate}
	}

	if s.writer == nil {
		return Description{Text: text, Provider: ProviderTemplate}
	}

	return Description{Text: text, Provider: ProviderGemini}
}

// writes a description and reports upstream failures to the caller. without a
// configured writer the template is the result.
func (s *Service) DescribeStrict(ctx context.Context, product Product) (string, error) {
	if s.writer == nil {
		return TemplateDescription(product), nil
	}

	started := time.Now()
	text, err := s.writer.WriteDescription(ctx, product)
	s.metrics.Generation(string(ProviderGemini), started, err)

	return text, err
}

// renders one product image
func (s *Service) Image(ctx context.Context, product Product, style string) (Image, error) {
	if s.images == nil {
		return Image{}, ErrNotConfigured
	}

	started := time.Now()
	img, err := s.images.GenerateImage(ctx, product, style)
	s.metrics.Generation(string(ProviderOpenAI), started, err)

	return img, err
}

func (s *Service) ImagesEnabled() bool {
	return s.images != nil
}
