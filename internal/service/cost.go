package service

// Per-1K-token USD rates, input/output. Used for usage reporting only; the
// provider's invoice is authoritative.
var modelRates = map[string][2]float64{
	"gemini-2.5-flash":       {0.00015, 0.0006},
	"gemini-2.5-pro":         {0.00125, 0.01},
	"openai/gpt-4o-mini":     {0.00015, 0.0006},
	"openai/gpt-4o":          {0.0025, 0.01},
	"anthropic/claude-3.5-sonnet": {0.003, 0.015},
}

var defaultRate = [2]float64{0.001, 0.002}

// EstimateCost returns the approximate USD cost of one completion.
func EstimateCost(modelName string, promptTokens, completionTokens int) float64 {
	rate, ok := modelRates[modelName]
	if !ok {
		rate = defaultRate
	}
	return float64(promptTokens)/1000*rate[0] + float64(completionTokens)/1000*rate[1]
}
