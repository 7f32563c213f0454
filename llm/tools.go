package llm

import (
	"context"
	"encoding/json"
)

// Tool describes a callable external tool.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (ToolOutput, error)
}

// OutputKind tags the variant of a tool's return value.
type OutputKind string

const (
	// OutputJSON is a JSON-serializable value; it becomes the content of a
	// single tool result message.
	OutputJSON OutputKind = "json"
	// OutputText is plain text passed through as the tool result content.
	OutputText OutputKind = "text"
	// OutputMessages expands into several messages instead of a single
	// result blob. The first message must be the tool result for the call.
	OutputMessages OutputKind = "messages"
)

// ToolOutput is the tagged return value of a tool execution. The zero value
// means "executed with no output" and is normalized by the loop into a
// success acknowledgement.
type ToolOutput struct {
	Kind     OutputKind
	Value    any
	Text     string
	Messages []Message
}

func TextOutput(text string) ToolOutput {
	return ToolOutput{Kind: OutputText, Text: text}
}

func JSONOutput(value any) ToolOutput {
	return ToolOutput{Kind: OutputJSON, Value: value}
}

// MessagesOutput returns a multi-message expansion. The loop appends the
// given messages to history verbatim, stamping the call's ID onto the first
// tool result so the provider can correlate it.
func MessagesOutput(messages ...Message) ToolOutput {
	return ToolOutput{Kind: OutputMessages, Messages: messages}
}

// noOutputAck is the content used when a tool returns nothing. Providers
// reject empty tool result content, so the loop never forwards it bare.
const noOutputAck = "function executed successfully (no output)"

// renderOutput turns a tool output into tool result content. Only OutputJSON
// and OutputText render here; OutputMessages is expanded by the loop.
func renderOutput(out ToolOutput) (string, error) {
	switch out.Kind {
	case OutputText:
		if out.Text == "" {
			return noOutputAck, nil
		}
		return out.Text, nil
	case OutputJSON:
		if out.Value == nil {
			return noOutputAck, nil
		}
		data, err := json.Marshal(out.Value)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return noOutputAck, nil
	}
}

// normalizeArguments coerces raw argument text into valid JSON for tool
// execution: valid JSON passes through, anything else is wrapped as a JSON
// string, and empty input becomes an empty object.
func normalizeArguments(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	wrapped, err := json.Marshal(raw)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(wrapped)
}

// FuncTool adapts a spec and a function into a Tool.
type FuncTool struct {
	ToolSpec ToolSpec
	Fn       func(ctx context.Context, args json.RawMessage) (ToolOutput, error)
}

func (t *FuncTool) Spec() ToolSpec { return t.ToolSpec }

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (ToolOutput, error) {
	return t.Fn(ctx, args)
}
