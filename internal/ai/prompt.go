package ai

import (
	"fmt"
	"strings"
)

const weightInstructions = `You estimate the packed shipping weight of consumer products for travelers who carry them in their luggage.
Estimate the weight of ONE unit including its retail box and packaging.
Answer with exactly one number in kilograms wrapped in dollar signs, for example: $1.3$
Do not output any other words, units, symbols or line breaks.
The number must be between 0.01 and 50 with at most two decimals. If you cannot tell, answer $0$.`

// WeightQuery describes the product whose weight should be suggested.
type WeightQuery struct {
	ProductName string `json:"productName"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
}

// BuildWeightPrompt renders the product details shown to the model below the instructions.
func BuildWeightPrompt(q WeightQuery) string {
	lines := []string{"Product: " + strings.TrimSpace(q.ProductName)}
	if l := strings.TrimSpace(q.Link); l != "" {
		lines = append(lines, "Link: "+l)
	}
	if d := strings.TrimSpace(q.Description); d != "" {
		lines = append(lines, "Details: "+d)
	}
	if q.Quantity > 1 {
		lines = append(lines, fmt.Sprintf("The shopper orders %d units; still answer for a single unit.", q.Quantity))
	}
	return strings.Join(lines, "\n")
}
