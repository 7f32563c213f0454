package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/convo-dev/convo/usage"
)

// MockTurn scripts one provider round. Exactly one of Err or the response
// fields is consumed per Stream/Complete call.
type MockTurn struct {
	Text      string
	ToolCalls []ToolCall
	// Deltas, when set, are emitted verbatim instead of synthesizing deltas
	// from ToolCalls. Lets tests script interleaved or malformed fragments.
	Deltas []ToolCallDelta
	// PostFinishDeltas arrive after the finish marker, simulating a provider
	// that keeps talking past its own termination signal.
	PostFinishDeltas []ToolCallDelta
	Usage            *usage.TokenUsage
	Finish           FinishReason
	Err              error
	Delay            time.Duration
}

// MockProvider replays scripted turns and records every request it sees.
type MockProvider struct {
	name string

	mu       sync.Mutex
	turns    []MockTurn
	turn     int
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) AddTurn(turn MockTurn) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, turn)
	return p
}

func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	return p.AddTurn(MockTurn{Text: text, Finish: FinishStop})
}

func (p *MockProvider) AddToolCall(id, name string, args any) *MockProvider {
	data, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return p.AddTurn(MockTurn{
		ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: data}},
		Finish:    FinishToolCalls,
	})
}

func (p *MockProvider) AddError(err error) *MockProvider {
	return p.AddTurn(MockTurn{Err: err})
}

func (p *MockProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turn = 0
	p.Requests = nil
}

func (p *MockProvider) CurrentTurn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turn
}

func (p *MockProvider) nextTurn(req Request) (MockTurn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.turn >= len(p.turns) {
		return MockTurn{}, fmt.Errorf("mock provider: no turn scripted for request %d", p.turn+1)
	}
	turn := p.turns[p.turn]
	p.turn++
	return turn, nil
}

func (p *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	turn, err := p.nextTurn(req)
	if err != nil {
		return nil, err
	}
	if turn.Delay > 0 {
		select {
		case <-time.After(turn.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	resp := &Response{
		Text:         turn.Text,
		ToolCalls:    turn.ToolCalls,
		FinishReason: turn.Finish,
		Usage:        turn.Usage,
	}
	if resp.FinishReason == "" {
		resp.FinishReason = FinishStop
	}
	return resp, nil
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	turn, err := p.nextTurn(req)
	if err != nil {
		return nil, err
	}
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.Delay > 0 {
			select {
			case <-time.After(turn.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if turn.Err != nil {
			return turn.Err
		}
		for _, chunk := range chunkText(turn.Text, 10) {
			if err := emit(ctx, events, Event{Type: EventTextDelta, Text: chunk}); err != nil {
				return err
			}
		}
		deltas := turn.Deltas
		if deltas == nil {
			deltas = synthesizeDeltas(turn.ToolCalls)
		}
		for _, d := range deltas {
			if err := emit(ctx, events, Event{Type: EventToolCallDelta, Delta: d}); err != nil {
				return err
			}
		}
		finish := turn.Finish
		if finish == "" {
			finish = FinishStop
		}
		if err := emit(ctx, events, Event{Type: EventFinish, FinishReason: finish}); err != nil {
			return err
		}
		for _, d := range turn.PostFinishDeltas {
			if err := emit(ctx, events, Event{Type: EventToolCallDelta, Delta: d}); err != nil {
				return err
			}
		}
		if turn.Usage != nil {
			if err := emit(ctx, events, Event{Type: EventUsage, Use: turn.Usage}); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// synthesizeDeltas splits each call into a start delta and argument
// fragments, the way an indexed wire format would deliver them.
func synthesizeDeltas(calls []ToolCall) []ToolCallDelta {
	var out []ToolCallDelta
	for i, call := range calls {
		out = append(out, ToolCallDelta{Index: i, HasIndex: true, ID: call.ID, Name: call.Name})
		for _, chunk := range chunkText(string(call.Arguments), 8) {
			out = append(out, ToolCallDelta{Index: i, HasIndex: true, Arguments: chunk})
		}
	}
	return out
}

func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > size {
		chunks = append(chunks, text[:size])
		text = text[size:]
	}
	return append(chunks, text)
}
