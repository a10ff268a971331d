package generator

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

type GeminiConfig struct {
	APIKey string
	Model  string // e.g., "gemini-2.0-flash"
}

// writes descriptions with the Gemini API
type GeminiWriter struct {
	client *genai.Client
	model  string
}

func NewGeminiWriter(ctx context.Context, config GeminiConfig) (*GeminiWriter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if config.Model == "" {
		config.Model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiWriter{client: client, model: config.Model}, nil
}

func (w *GeminiWriter) WriteDescription(ctx context.Context, product Product) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
		Temperature:     genai.Ptr(float32(0.8)),
		MaxOutputTokens: 512,
	}

	resp, err := w.client.Models.GenerateContent(ctx, w.model, genai.Text(buildDescriptionPrompt(product)), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}

	return text, nil
}
