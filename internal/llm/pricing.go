package llm

import "strings"

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

// Published list prices; longer prefixes are matched first.
var prices = []struct {
	prefix string
	price  price
}{
	{"gemini-2.5-flash-lite", price{input: 0.10, output: 0.40}},
	{"gemini-2.5-flash", price{input: 0.30, output: 2.50}},
	{"gemini-2.5-pro", price{input: 1.25, output: 10.00}},
	{"gemini-2.0-flash", price{input: 0.10, output: 0.40}},
}

// EstimateCost returns the USD cost of usage on model, or 0 for unknown models.
func EstimateCost(model string, usage Usage) float64 {
	for _, p := range prices {
		if strings.HasPrefix(model, p.prefix) {
			return (float64(usage.InputTokens)*p.price.input + float64(usage.OutputTokens)*p.price.output) / 1_000_000
		}
	}
	return 0
}
