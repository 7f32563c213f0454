package usage

import "strings"

// ModelPricing is per-token cost in USD. Tiered fields apply to the portion
// of a request above tieredThreshold tokens; zero means no tier.
type ModelPricing struct {
	InputCostPerToken           float64
	OutputCostPerToken          float64
	CacheReadInputTokenCost     float64
	InputCostPerTokenAbove200k  float64
	OutputCostPerTokenAbove200k float64
}

const tieredThreshold = 200_000

// pricingTable is a static snapshot of common model prices. Lookup falls
// back to prefix matching so dated variants ("gpt-4o-2024-11-20") resolve
// to their family entry.
var pricingTable = map[string]ModelPricing{
	"gpt-4o":            {InputCostPerToken: 2.5e-6, OutputCostPerToken: 10e-6, CacheReadInputTokenCost: 1.25e-6},
	"gpt-4o-mini":       {InputCostPerToken: 0.15e-6, OutputCostPerToken: 0.6e-6, CacheReadInputTokenCost: 0.075e-6},
	"gpt-4.1":           {InputCostPerToken: 2e-6, OutputCostPerToken: 8e-6, CacheReadInputTokenCost: 0.5e-6},
	"gpt-4.1-mini":      {InputCostPerToken: 0.4e-6, OutputCostPerToken: 1.6e-6, CacheReadInputTokenCost: 0.1e-6},
	"o3":                {InputCostPerToken: 2e-6, OutputCostPerToken: 8e-6, CacheReadInputTokenCost: 0.5e-6},
	"o4-mini":           {InputCostPerToken: 1.1e-6, OutputCostPerToken: 4.4e-6, CacheReadInputTokenCost: 0.275e-6},
	"claude-opus-4":     {InputCostPerToken: 15e-6, OutputCostPerToken: 75e-6, CacheReadInputTokenCost: 1.5e-6},
	"claude-sonnet-4": {
		InputCostPerToken: 3e-6, OutputCostPerToken: 15e-6, CacheReadInputTokenCost: 0.3e-6,
		InputCostPerTokenAbove200k: 6e-6, OutputCostPerTokenAbove200k: 22.5e-6,
	},
	"claude-haiku-4":   {InputCostPerToken: 1e-6, OutputCostPerToken: 5e-6, CacheReadInputTokenCost: 0.1e-6},
	"gemini-2.5-pro":   {InputCostPerToken: 1.25e-6, OutputCostPerToken: 10e-6},
	"gemini-2.5-flash": {InputCostPerToken: 0.3e-6, OutputCostPerToken: 2.5e-6},
}

// Pricing looks up the price entry for a model name.
func Pricing(model string) (ModelPricing, bool) {
	if p, ok := pricingTable[model]; ok {
		return p, true
	}
	// Longest matching family prefix wins.
	var best string
	for key := range pricingTable {
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return pricingTable[best], true
	}
	return ModelPricing{}, false
}

// Cost computes the USD cost of the given usage under a model's pricing.
// Unknown models report zero cost and false.
func Cost(model string, u TokenUsage) (float64, bool) {
	p, ok := Pricing(model)
	if !ok {
		return 0, false
	}
	uncached := u.InputTokens - u.CachedInputTokens
	if uncached < 0 {
		uncached = 0
	}
	cost := tieredCost(uncached, p.InputCostPerToken, p.InputCostPerTokenAbove200k)
	cost += tieredCost(u.OutputTokens, p.OutputCostPerToken, p.OutputCostPerTokenAbove200k)
	cost += float64(u.CachedInputTokens) * p.CacheReadInputTokenCost
	return cost, true
}

func tieredCost(tokens int, basePrice, tieredPrice float64) float64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > tieredThreshold && tieredPrice > 0 {
		below := tieredThreshold
		above := tokens - tieredThreshold
		return float64(below)*basePrice + float64(above)*tieredPrice
	}
	return float64(tokens) * basePrice
}
