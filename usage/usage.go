// Package usage tracks token consumption and tool activity across the
// rounds of a conversation call.
package usage

import "sync"

// TokenUsage is one provider response's token counts. Cached and reasoning
// counts are zero for providers that do not report them.
type TokenUsage struct {
	InputTokens       int `json:"input_tokens"`
	CachedInputTokens int `json:"cached_input_tokens,omitempty"`
	ReasoningTokens   int `json:"reasoning_tokens,omitempty"`
	OutputTokens      int `json:"output_tokens"`
	TotalTokens       int `json:"total_tokens"`
}

func (u TokenUsage) add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:       u.InputTokens + other.InputTokens,
		CachedInputTokens: u.CachedInputTokens + other.CachedInputTokens,
		ReasoningTokens:   u.ReasoningTokens + other.ReasoningTokens,
		OutputTokens:      u.OutputTokens + other.OutputTokens,
		TotalTokens:       u.TotalTokens + other.TotalTokens,
	}
}

// Accumulator sums usage over the provider requests of one call. The first
// reported usage is also kept as a snapshot so the caller can see what a
// single request cost before tool rounds multiplied it.
type Accumulator struct {
	mu           sync.Mutex
	first        *TokenUsage
	total        TokenUsage
	requests     int
	callsPerTool map[string]int
	toolCalls    int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{callsPerTool: make(map[string]int)}
}

// AddUsage folds one provider response's usage into the running totals.
func (a *Accumulator) AddUsage(u TokenUsage) {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.first == nil {
		snapshot := u
		a.first = &snapshot
	}
	a.total = a.total.add(u)
	a.requests++
}

// RecordToolCall counts one tool invocation under the tool's call name.
func (a *Accumulator) RecordToolCall(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callsPerTool[name]++
	a.toolCalls++
}

// Report is a point-in-time view of everything the accumulator collected.
type Report struct {
	First        TokenUsage     `json:"first"`
	Total        TokenUsage     `json:"total"`
	Requests     int            `json:"requests"`
	ToolCalls    int            `json:"tool_calls"`
	CallsPerTool map[string]int `json:"calls_per_tool,omitempty"`
	CostUSD      float64        `json:"cost_usd,omitempty"`
}

func (a *Accumulator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := Report{
		Total:     a.total,
		Requests:  a.requests,
		ToolCalls: a.toolCalls,
	}
	if a.first != nil {
		r.First = *a.first
	}
	if len(a.callsPerTool) > 0 {
		r.CallsPerTool = make(map[string]int, len(a.callsPerTool))
		for k, v := range a.callsPerTool {
			r.CallsPerTool[k] = v
		}
	}
	return r
}
