package bulk

import "codeberg.org/pdgen/server/internal/generator"

// largest batch accepted in one request
const MaxProducts = 100

type Product struct {
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	Features    string `json:"features"`
	Tone        string `json:"tone"`
}

// Request represents a bulk generation batch
type Request struct {
	Products         []Product `json:"products"`
	Email            string    `json:"email"`
	NotifyOnComplete bool      `json:"notifyOnComplete"`
}

type Result struct {
	ProductName string `json:"product_name"`
	Description string `json:"description"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Response represents the per-product outcomes of a batch
type Response struct {
	Success        bool     `json:"success"`
	Results        []Result `json:"results"`
	Processed      int      `json:"processed"`
	Successful     int      `json:"successful"`
	ProcessingTime int64    `json:"processingTime"` // milliseconds
}

func (p Product) toProduct() generator.Product {
	return generator.Product{
		Name:        p.ProductName,
		Category:    p.Category,
		KeyFeatures: p.Features,
		Tone:        p.Tone,
	}
}
