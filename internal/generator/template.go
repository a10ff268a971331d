package generator

import (
	"fmt"
	"strings"
)

// renders a description without any upstream call; used when the writer
// fails or is not configured
func TemplateDescription(p Product) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Discover the %s", p.Name)

	if p.Category != "" {
		fmt.Fprintf(&b, ", a standout choice in %s", strings.ToLower(p.Category))
	}

	b.WriteString(".")

	if p.KeyFeatures != "" {
		fmt.Fprintf(&b, " Designed with %s, it delivers quality you can count on every day.", p.KeyFeatures)
	} else {
		b.WriteString(" Thoughtfully designed and built to last, it delivers quality you can count on every day.")
	}

	if p.TargetAudience != "" {
		fmt.Fprintf(&b, " Made for %s who expect more from the products they use.", p.TargetAudience)
	}

	b.WriteString(" Order yours today and see the difference for yourself.")

	return b.String()
}
