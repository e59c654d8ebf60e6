package llmrouter

// Rate is per-million-token USD pricing for one model.
type Rate struct {
	InputPerM  float64
	OutputPerM float64
}

// conservativeFallback is used when a model has no entry in the table: a
// mid-range estimate so cost reporting never silently reads as free.
var conservativeFallback = Rate{InputPerM: 5, OutputPerM: 15}

// RateTable maps model ID to its per-million-token pricing.
type RateTable map[string]Rate

// DefaultRateTable returns the built-in pricing for the models the
// configured providers are expected to serve. Costs are USD per million
// tokens and approximate published list pricing at time of writing.
func DefaultRateTable() RateTable {
	return RateTable{
		"claude-opus-4-20250514":      {InputPerM: 15, OutputPerM: 75},
		"claude-sonnet-4-20250514":    {InputPerM: 3, OutputPerM: 15},
		"claude-3-5-haiku-20241022":   {InputPerM: 0.8, OutputPerM: 4},
		"gpt-4o":                      {InputPerM: 2.5, OutputPerM: 10},
		"gpt-4o-mini":                 {InputPerM: 0.15, OutputPerM: 0.6},
		"gpt-4-turbo":                 {InputPerM: 10, OutputPerM: 30},
		"text-embedding-3-small":      {InputPerM: 0.02, OutputPerM: 0},
		"text-embedding-3-large":      {InputPerM: 0.13, OutputPerM: 0},
	}
}

// Estimate returns the USD cost of inputTokens/outputTokens against model,
// falling back to a conservative mid-range rate (and reporting warned=true)
// when model has no entry.
func (t RateTable) Estimate(model string, inputTokens, outputTokens int) (usd float64, warned bool) {
	rate, ok := t[model]
	if !ok {
		rate = conservativeFallback
		warned = true
	}
	usd = (float64(inputTokens)*rate.InputPerM + float64(outputTokens)*rate.OutputPerM) / 1_000_000
	return usd, warned
}
