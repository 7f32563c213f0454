package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/convo-dev/convo/usage"
)

// phase labels the streaming loop's position between provider rounds. The
// loop is a flat state machine: each provider round either terminates the
// call or transitions to tool execution and back.
type phase int

const (
	phaseAwaitingResponse phase = iota
	phaseExecutingTools
	phaseTerminal
)

// GenerateStreamingResponse runs the tool-invocation loop in streaming mode.
// Text deltas are forwarded to the returned stream as they arrive; tool
// rounds execute between provider turns, sequentially and in call order.
// The stream ends with io.EOF after the terminal response, or with the
// fatal error that stopped the loop.
func (e *Engine) GenerateStreamingResponse(ctx context.Context, messages []Message, opts ...CallOption) (*ChunkStream, error) {
	set := e.settings(opts)
	if err := e.history.Append(messages...); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	return newChunkStream(ctx, func(ctx context.Context, out chan<- Chunk) error {
		return e.streamLoop(ctx, set, out)
	}), nil
}

func (e *Engine) streamLoop(ctx context.Context, set callSettings, out chan<- Chunk) error {
	acc := usage.NewAccumulator()
	led := &ledger{}
	executed := 0

	var round *roundState
	state := phaseAwaitingResponse
	for state != phaseTerminal {
		switch state {
		case phaseAwaitingResponse:
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			round, err = e.streamOneRound(ctx, set.model, out, acc)
			if err != nil {
				return err
			}
			if len(round.calls) == 0 {
				if strings.TrimSpace(round.text) == "" {
					return ErrEmptyResponse
				}
				if err := e.history.Append(AssistantText(round.text)); err != nil {
					return fmt.Errorf("append history: %w", err)
				}
				if err := send(ctx, out, Chunk{FinishReason: round.finish}); err != nil {
					return err
				}
				state = phaseTerminal
				continue
			}
			state = phaseExecutingTools

		case phaseExecutingTools:
			calls := ensureToolCallIDs(round.calls)
			if executed+len(calls) > set.maxToolCalls {
				return fmt.Errorf("%w: %d executed, %d requested, cap %d",
					ErrMaxToolCalls, executed, len(calls), set.maxToolCalls)
			}
			if err := e.history.Append(assistantCallMessage(round.text, calls)); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
			results, err := e.executeSequential(ctx, calls, acc, led)
			if err != nil {
				return err
			}
			for _, msgs := range results {
				if err := e.history.Append(msgs...); err != nil {
					return fmt.Errorf("append history: %w", err)
				}
			}
			executed += len(calls)
			state = phaseAwaitingResponse
		}
	}

	if set.onUsage != nil {
		report := acc.Report()
		report.CostUSD, _ = usage.Cost(set.model, report.Total)
		set.onUsage(report, led.Records())
	}
	return nil
}

// roundState is what one provider turn produced: the forwarded text, the
// reassembled tool calls, and the finish reason if the provider sent one.
type roundState struct {
	text   string
	calls  []ToolCall
	finish FinishReason
}

// streamOneRound drives a single provider stream to completion, forwarding
// text deltas to the caller and feeding tool-call fragments through the
// reassembler. Fragments arriving after a finish marker are dropped.
func (e *Engine) streamOneRound(ctx context.Context, model string, out chan<- Chunk, acc *usage.Accumulator) (*roundState, error) {
	req, err := e.buildRequest(model)
	if err != nil {
		return nil, err
	}
	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	asm := newAssembly()
	round := &roundState{}
	var text strings.Builder
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch ev.Type {
		case EventTextDelta:
			if asm.outputTerminated {
				continue
			}
			text.WriteString(ev.Text)
			if err := send(ctx, out, Chunk{Content: ev.Text}); err != nil {
				return nil, err
			}
		case EventToolCallDelta:
			if asm.outputTerminated {
				continue
			}
			if err := asm.addDelta(ev.Delta); err != nil {
				return nil, err
			}
		case EventFinish:
			round.finish = ev.FinishReason
			asm.outputTerminated = true
		case EventUsage:
			if ev.Use != nil {
				acc.AddUsage(*ev.Use)
			}
		case EventRetry:
			e.logger.Warn("provider retrying", "attempt", ev.RetryAttempt, "wait", ev.RetryWait)
		case EventError:
			return nil, ev.Err
		}
	}

	round.text = text.String()
	round.calls = asm.calls()
	return round, nil
}
