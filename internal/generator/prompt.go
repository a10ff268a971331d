package generator

import (
	"fmt"
	"strings"
)

const systemInstruction = `You write product descriptions for online stores.
Write persuasive, accurate copy of 120 to 180 words.
Do not invent specifications that were not provided.
Return plain text only, without headings or markdown.`

func buildDescriptionPrompt(p Product) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Product: %s\n", p.Name)

	if p.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", p.Category)
	}

	if p.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", p.TargetAudience)
	}

	if p.KeyFeatures != "" {
		fmt.Fprintf(&b, "Key features: %s\n", p.KeyFeatures)
	}

	fmt.Fprintf(&b, "Tone: %s\n", toneOrDefault(p.Tone))
	b.WriteString("\nWrite the description now.")

	return b.String()
}

func buildImagePrompt(p Product, style string) string {
	prompt := fmt.Sprintf("%s photograph of %s", style, p.Name)

	if p.Category != "" {
		prompt += fmt.Sprintf(", a %s product", p.Category)
	}

	if p.KeyFeatures != "" {
		prompt += fmt.Sprintf(", highlighting %s", p.KeyFeatures)
	}

	return prompt + ". High resolution, no text or logos."
}

func toneOrDefault(tone string) string {
	if strings.TrimSpace(tone) == "" {
		return "professional"
	}

	return tone
}
