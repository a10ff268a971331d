package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	openaiImagesURL   = "https://api.openai.com/v1/images/generations"
	defaultImageModel = "dall-e-3"
	defaultImageSize  = "1024x1024"
)

// shared HTTP client for OpenAI API calls
var openaiHTTPClient = &http.Client{
	Timeout: 90 * time.Second, // image generation is slow
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

type OpenAIConfig struct {
	APIKey string
	Model  string // e.g., "dall-e-3"

	// overrides the images endpoint, for tests
	URL string
}

// generates product images with the OpenAI images API
type OpenAIImages struct {
	config     OpenAIConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewOpenAIImages(config OpenAIConfig) *OpenAIImages {
	if config.Model == "" {
		config.Model = defaultImageModel
	}

	if config.URL == "" {
		config.URL = openaiImagesURL
	}

	return &OpenAIImages{
		config:     config,
		httpClient: openaiHTTPClient,
		// image tier allows a handful of requests per second
		limiter: rate.NewLimiter(5, 5),
	}
}

func (g *OpenAIImages) GenerateImage(ctx context.Context, product Product, style string) (Image, error) {
	reqBody := imageRequest{
		Model:  g.config.Model,
		Prompt: buildImagePrompt(product, style),
		N:      1,
		Size:   defaultImageSize,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Image{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return Image{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)

	if err := g.limiter.Wait(ctx); err != nil {
		return Image{}, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return Image{}, fmt.Errorf("openai request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var imgResp imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return Image{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(imgResp.Data) == 0 || imgResp.Data[0].URL == "" {
		return Image{}, fmt.Errorf("openai returned no image")
	}

	return Image{
		URL:   imgResp.Data[0].URL,
		Style: style,
		Model: g.config.Model,
	}, nil
}
