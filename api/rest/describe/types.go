package describe

import (
	"time"

	"codeberg.org/pdgen/server/internal/generator"
)

// Request represents the request body for a single product description
type Request struct {
	ProductName     string `json:"productName"`
	ProductCategory string `json:"productCategory"`
	TargetAudience  string `json:"targetAudience"`
	KeyFeatures     string `json:"keyFeatures"`
	Tone            string `json:"tone"`
	ImagesOnly      bool   `json:"imagesOnly"`
	GenerateImages  bool   `json:"generateImages"`
}

// Response represents the generated description and images
type Response struct {
	Success      bool              `json:"success"`
	Descriptions []string          `json:"descriptions"`
	Images       []generator.Image `json:"images"`
	Timestamp    time.Time         `json:"timestamp"`
	Warnings     []string          `json:"warnings,omitempty"`
}

func (r Request) product() generator.Product {
	return generator.Product{
		Name:           r.ProductName,
		Category:       r.ProductCategory,
		TargetAudience: r.TargetAudience,
		KeyFeatures:    r.KeyFeatures,
		Tone:           r.Tone,
	}
}

func (r Request) wantsDescription() bool {
	return !r.ImagesOnly
}

func (r Request) wantsImage() bool {
	return r.ImagesOnly || r.GenerateImages
}
