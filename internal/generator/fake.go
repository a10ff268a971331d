package generator

import (
	"context"
	"sync"
)

// in-memory provider used by handler tests
type Fake struct {
	mu sync.Mutex

	Text     string
	ImageURL string
	Err      error
	ImageErr error

	Calls      int
	ImageCalls int
}

func (f *Fake) WriteDescription(_ context.Context, product Product) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}

	if f.Text != "" {
		return f.Text, nil
	}

	return "Generated copy for " + product.Name, nil
}

func (f *Fake) GenerateImage(_ context.Context, product Product, style string) (Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ImageCalls++
	if f.ImageErr != nil {
		return Image{}, f.ImageErr
	}

	url := f.ImageURL
	if url == "" {
		url = "https://images.test/" + product.Name + ".png"
	}

	return Image{URL: url, Style: style, Model: "fake"}, nil
}
