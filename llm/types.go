package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/convo-dev/convo/usage"
)

// Provider is the transport to a model backend. Complete issues a single
// blocking request; Stream opens an incremental response.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model turn.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     float32
}

// Response is a complete (non-streamed) model reply.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        *usage.TokenUsage
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Part represents a single content part.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Text returns the concatenated text content of the message.
func (m Message) Text() string {
	var out string
	for _, part := range m.Parts {
		if part.Type == PartText {
			out += part.Text
		}
	}
	return out
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
	// Instructions are prepended to the outbound request as system text so a
	// tool can carry its own usage guidance. Not stored in history.
	Instructions []string
}

// ToolCall is a model-requested tool invocation. Arguments is opaque JSON
// text until parsed; a parse failure must never abort the loop.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the output from executing a tool call.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

// FinishReason says why the provider stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
)

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventToolCallDelta EventType = "tool_call_delta"
	EventFinish        EventType = "finish"
	EventUsage         EventType = "usage"
	EventError         EventType = "error"
	EventRetry         EventType = "retry"
)

// ToolCallDelta is one incremental piece of a streamed tool call. A delta
// carrying an ID opens a new call; a delta without one continues an existing
// call. Index, when the wire format provides it, disambiguates interleaved
// calls within a round.
type ToolCallDelta struct {
	Index     int
	HasIndex  bool
	ID        string
	Name      string
	Arguments string
}

// Event represents one streamed response fragment.
type Event struct {
	Type         EventType
	Text         string
	Delta        ToolCallDelta
	FinishReason FinishReason
	Use          *usage.TokenUsage
	Err          error
	// Retry fields (for EventRetry)
	RetryAttempt int
	RetryWait    time.Duration
}

// Chunk is one element of the caller-facing output sequence: either a text
// delta or the terminal finish reason.
type Chunk struct {
	Content      string
	FinishReason FinishReason
}

// Moderator is a pure transform applied to the full message list before each
// provider request (redaction, summarization triggers). It must not mutate
// its input slice.
type Moderator func([]Message) []Message

func SystemText(text string) Message {
	return Message{
		Role:  RoleSystem,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func UserText(text string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func ToolResultMessage(id, name, content string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: content,
			},
		}},
	}
}

// ToolErrorMessage creates a tool result message that indicates an error.
// The error is passed to the model so it can respond gracefully instead of
// failing the call.
func ToolErrorMessage(id, name, errorText string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: errorText,
				IsError: true,
			},
		}},
	}
}

// AsMessages normalizes a mixed list of strings and Messages: strings become
// user messages, Messages pass through unchanged.
func AsMessages(items ...any) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, UserText(v))
		case Message:
			out = append(out, v)
		}
	}
	return out
}
