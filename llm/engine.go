package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convo-dev/convo/internal/logkit"
	"github.com/convo-dev/convo/usage"
)

// DefaultMaxToolCalls caps the total number of tool executions across one
// top-level call.
const DefaultMaxToolCalls = 50

// Engine orchestrates provider requests and external tool execution: it
// drives repeated request/tool rounds until a terminal response or a bound
// is hit.
type Engine struct {
	provider        Provider
	tools           *ToolRegistry
	history         HistoryStore
	moderators      []Moderator
	maxToolCalls    int
	model           string
	maxOutputTokens int
	temperature     float32
	logger          *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory supplies an external history log that outlives the call.
func WithHistory(store HistoryStore) Option {
	return func(e *Engine) { e.history = store }
}

// WithModerators installs pure transforms applied to the full message list
// before every provider request.
func WithModerators(mods ...Moderator) Option {
	return func(e *Engine) { e.moderators = append(e.moderators, mods...) }
}

// WithMaxToolCalls overrides the engine-wide tool call cap.
func WithMaxToolCalls(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxToolCalls = n
		}
	}
}

// WithModel sets the default model identifier sent to the provider.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithMaxOutputTokens bounds the tokens the provider may generate per
// request. Zero leaves the provider default in place.
func WithMaxOutputTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOutputTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature sent with every request.
func WithTemperature(t float32) Option {
	return func(e *Engine) {
		if t > 0 {
			e.temperature = t
		}
	}
}

// WithLogger replaces the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(provider Provider, tools *ToolRegistry, opts ...Option) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	e := &Engine{
		provider:     provider,
		tools:        tools,
		maxToolCalls: DefaultMaxToolCalls,
		logger:       logkit.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.history == nil {
		e.history = NewHistory(HistoryOptions{})
	}
	return e
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry { return e.tools }

// RegisterTool adds a tool to the engine's registry.
func (e *Engine) RegisterTool(tool Tool) { e.tools.Register(tool) }

// Result is the outcome of a blocking call.
type Result struct {
	Message         string
	Usage           usage.Report
	ToolInvocations []ToolInvocation
}

// CallOption configures a single top-level call.
type CallOption func(*callSettings)

type callSettings struct {
	model        string
	maxToolCalls int
	onUsage      func(usage.Report, []ToolInvocation)
}

// WithCallModel overrides the model for this call only.
func WithCallModel(model string) CallOption {
	return func(s *callSettings) { s.model = model }
}

// WithCallMaxToolCalls overrides the tool call cap for this call only.
func WithCallMaxToolCalls(n int) CallOption {
	return func(s *callSettings) {
		if n > 0 {
			s.maxToolCalls = n
		}
	}
}

// WithUsageCallback delivers usage and the invocation ledger when a
// streaming call terminates; they are only fully known at that point.
func WithUsageCallback(fn func(usage.Report, []ToolInvocation)) CallOption {
	return func(s *callSettings) { s.onUsage = fn }
}

func (e *Engine) settings(opts []CallOption) callSettings {
	s := callSettings{
		model:        e.model,
		maxToolCalls: e.maxToolCalls,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// GenerateResponse runs the tool-invocation loop in blocking mode and
// returns the terminal assistant message with accumulated usage and the
// invocation ledger. Tool calls within a round execute concurrently; their
// result messages are appended in call order.
func (e *Engine) GenerateResponse(ctx context.Context, messages []Message, opts ...CallOption) (*Result, error) {
	set := e.settings(opts)
	acc := usage.NewAccumulator()
	led := &ledger{}

	if err := e.history.Append(messages...); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	executed := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.sendComplete(ctx, set.model)
		if err != nil {
			return nil, err
		}
		if resp.Usage != nil {
			acc.AddUsage(*resp.Usage)
		}

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Text) == "" {
				return nil, ErrEmptyResponse
			}
			if err := e.history.Append(AssistantText(resp.Text)); err != nil {
				return nil, fmt.Errorf("append history: %w", err)
			}
			report := acc.Report()
			report.CostUSD, _ = usage.Cost(set.model, report.Total)
			return &Result{
				Message:         resp.Text,
				Usage:           report,
				ToolInvocations: led.Records(),
			}, nil
		}

		calls := ensureToolCallIDs(resp.ToolCalls)
		if executed+len(calls) > set.maxToolCalls {
			return nil, fmt.Errorf("%w: %d executed, %d requested, cap %d",
				ErrMaxToolCalls, executed, len(calls), set.maxToolCalls)
		}

		if err := e.history.Append(assistantCallMessage(resp.Text, calls)); err != nil {
			return nil, fmt.Errorf("append history: %w", err)
		}

		results, err := e.executeFanOut(ctx, calls, acc, led)
		if err != nil {
			return nil, err
		}
		for _, msgs := range results {
			if err := e.history.Append(msgs...); err != nil {
				return nil, fmt.Errorf("append history: %w", err)
			}
		}
		executed += len(calls)
	}
}

// sendComplete builds the outbound request from the full moderated history
// and issues one blocking provider request.
func (e *Engine) sendComplete(ctx context.Context, model string) (*Response, error) {
	req, err := e.buildRequest(model)
	if err != nil {
		return nil, err
	}
	return e.provider.Complete(ctx, req)
}

func (e *Engine) buildRequest(model string) (Request, error) {
	msgs, err := e.history.Messages()
	if err != nil {
		return Request{}, fmt.Errorf("read history: %w", err)
	}
	for _, mod := range e.moderators {
		msgs = mod(msgs)
	}
	specs := e.tools.Specs()
	if instr := collectInstructions(specs); instr != "" {
		msgs = append([]Message{SystemText(instr)}, msgs...)
	}
	return Request{
		Model:           model,
		Messages:        msgs,
		Tools:           specs,
		MaxOutputTokens: e.maxOutputTokens,
		Temperature:     e.temperature,
	}, nil
}

// collectInstructions joins tool-carried usage guidance into one system
// block prepended to the outbound request.
func collectInstructions(specs []ToolSpec) string {
	var lines []string
	for _, spec := range specs {
		lines = append(lines, spec.Instructions...)
	}
	return strings.Join(lines, "\n")
}

// executeFanOut runs one round of tool calls concurrently and reassembles
// the result messages into call order. Tools never touch the history log,
// the accumulator, or the ledger from their goroutines; the loop applies all
// shared-state mutations sequentially after the fan-out completes.
func (e *Engine) executeFanOut(ctx context.Context, calls []ToolCall, acc *usage.Accumulator, led *ledger) ([][]Message, error) {
	type roundResult struct {
		index int
		msgs  []Message
		rec   ToolInvocation
		fatal error
	}

	results := make([]roundResult, len(calls))
	if len(calls) == 1 {
		msgs, rec, fatal := e.executeOne(ctx, calls[0])
		results[0] = roundResult{0, msgs, rec, fatal}
	} else {
		ch := make(chan roundResult, len(calls))
		for i, call := range calls {
			go func(idx int, c ToolCall) {
				msgs, rec, fatal := e.executeOne(ctx, c)
				ch <- roundResult{idx, msgs, rec, fatal}
			}(i, call)
		}
		for range calls {
			r := <-ch
			results[r.index] = r
		}
	}

	// Every call in the round already ran, so every call gets its ledger
	// record even when an earlier one failed fatally.
	var fatal error
	out := make([][]Message, 0, len(calls))
	for _, r := range results {
		led.append(r.rec)
		acc.RecordToolCall(r.rec.Name)
		if r.fatal != nil && fatal == nil {
			fatal = r.fatal
		}
		out = append(out, r.msgs)
	}
	if fatal != nil {
		return nil, fatal
	}
	return out, nil
}

// executeSequential runs one round of tool calls in order, applying ledger
// and accumulator updates as it goes. Used by streaming mode.
func (e *Engine) executeSequential(ctx context.Context, calls []ToolCall, acc *usage.Accumulator, led *ledger) ([][]Message, error) {
	out := make([][]Message, 0, len(calls))
	for _, call := range calls {
		msgs, rec, fatal := e.executeOne(ctx, call)
		led.append(rec)
		acc.RecordToolCall(rec.Name)
		if fatal != nil {
			return nil, fatal
		}
		out = append(out, msgs)
	}
	return out, nil
}

// executeOne resolves and runs a single tool call. An unresolvable name is
// reported back to the model, not to the caller; a tool returning an error
// is fatal to the whole call, with the failure captured in the ledger first.
func (e *Engine) executeOne(ctx context.Context, call ToolCall) ([]Message, ToolInvocation, error) {
	rec := ToolInvocation{
		ID:        call.ID,
		Name:      call.Name,
		StartedAt: time.Now(),
		Input:     call.Arguments,
	}

	tool, ok := e.tools.Resolve(call.Name)
	if !ok {
		errMsg := fmt.Sprintf("attempted to call nonexistent function %q", call.Name)
		e.logger.Warn("tool not found", "name", call.Name, "call_id", call.ID)
		rec.FinishedAt = time.Now()
		rec.Error = errMsg
		return []Message{ToolErrorMessage(call.ID, call.Name, errMsg)}, rec, nil
	}

	args := normalizeArguments(string(call.Arguments))
	e.logger.Debug("executing tool", "name", call.Name, "call_id", call.ID, "args", argPreview(args))

	out, err := tool.Execute(ctx, args)
	rec.FinishedAt = time.Now()
	if err != nil {
		rec.Error = err.Error()
		e.logger.Warn("tool failed", "name", call.Name, "call_id", call.ID, "err", err)
		return nil, rec, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	rec.OK = true

	if out.Kind == OutputMessages {
		msgs := stampCallID(call, out.Messages)
		rec.Output = fmt.Sprintf("(%d messages)", len(msgs))
		return msgs, rec, nil
	}

	content, err := renderOutput(out)
	if err != nil {
		rec.OK = false
		rec.Error = err.Error()
		return nil, rec, fmt.Errorf("serialize result of %s: %w", call.Name, err)
	}
	rec.Output = content
	return []Message{ToolResultMessage(call.ID, call.Name, content)}, rec, nil
}

// stampCallID makes a multi-message expansion correlatable: the first tool
// result in the expansion takes the call's ID if the factory left it blank.
// An expansion without any tool result gets one prepended so the provider
// always sees a result for the call.
func stampCallID(call ToolCall, msgs []Message) []Message {
	for i := range msgs {
		if msgs[i].Role != RoleTool {
			continue
		}
		for j := range msgs[i].Parts {
			res := msgs[i].Parts[j].ToolResult
			if res != nil {
				if res.ID == "" {
					res.ID = call.ID
				}
				return msgs
			}
		}
	}
	ack := ToolResultMessage(call.ID, call.Name, noOutputAck)
	return append([]Message{ack}, msgs...)
}

func assistantCallMessage(text string, calls []ToolCall) Message {
	var parts []Part
	if text != "" {
		parts = append(parts, Part{Type: PartText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = "call-" + uuid.NewString()
		}
	}
	return calls
}
