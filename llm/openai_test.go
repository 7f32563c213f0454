package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBuildCompatMessages_Roles(t *testing.T) {
	messages := []Message{
		SystemText("be terse"),
		UserText("hello"),
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartText, Text: "checking"},
				{Type: PartToolCall, ToolCall: &ToolCall{
					ID: "call-1", Name: "list_files", Arguments: []byte(`{"path":"."}`),
				}},
			},
		},
		ToolResultMessage("call-1", "list_files", "main.go"),
	}

	out := buildCompatMessages(messages)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	if out[0].Role != "system" || out[1].Role != "user" {
		t.Errorf("roles = %q, %q", out[0].Role, out[1].Role)
	}
	if out[2].Role != "assistant" || len(out[2].ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", out[2])
	}
	if out[3].Role != "tool" || out[3].ToolCallID != "call-1" {
		t.Errorf("tool message = %+v", out[3])
	}
}

func TestBuildCompatMessages_SkipsEmptyText(t *testing.T) {
	out := buildCompatMessages([]Message{UserText("")})
	if len(out) != 0 {
		t.Errorf("expected empty message dropped, got %+v", out)
	}
}

func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}
}

func TestOpenAICompat_StreamText(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`,
		`data: [DONE]`,
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "", "test-model", "Test")
	stream, err := p.Stream(context.Background(), Request{Messages: AsMessages("hi")})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var text string
	var finish FinishReason
	var gotUsage bool
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		switch ev.Type {
		case EventTextDelta:
			text += ev.Text
		case EventFinish:
			finish = ev.FinishReason
		case EventUsage:
			gotUsage = true
			if ev.Use.InputTokens != 7 || ev.Use.OutputTokens != 2 {
				t.Errorf("usage = %+v", ev.Use)
			}
		}
	}
	if text != "Hello" {
		t.Errorf("text = %q", text)
	}
	if finish != FinishStop {
		t.Errorf("finish = %q", finish)
	}
	if !gotUsage {
		t.Error("expected usage event")
	}
}

func TestOpenAICompat_StreamToolCallDeltas(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"search"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "", "test-model", "Test")
	stream, err := p.Stream(context.Background(), Request{Messages: AsMessages("hi")})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	asm := newAssembly()
	var finish FinishReason
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		switch ev.Type {
		case EventToolCallDelta:
			if !ev.Delta.HasIndex {
				t.Error("wire index was dropped")
			}
			if err := asm.addDelta(ev.Delta); err != nil {
				t.Fatalf("addDelta error = %v", err)
			}
		case EventFinish:
			finish = ev.FinishReason
		}
	}

	calls := asm.calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "search" {
		t.Errorf("call = %+v", calls[0])
	}
	if string(calls[0].Arguments) != `{"q":"go"}` {
		t.Errorf("arguments = %s", calls[0].Arguments)
	}
	if finish != FinishToolCalls {
		t.Errorf("finish = %q", finish)
	}
}

func TestOpenAICompat_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiChatRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Stream {
			t.Error("Complete should not request streaming")
		}
		json.NewEncoder(w).Encode(oaiChatResponse{
			Choices: []oaiChoice{{
				Message:      &oaiMessage{Role: "assistant", Content: "done"},
				FinishReason: "stop",
			}},
			Usage: &oaiUsage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		})
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "key", "test-model", "Test")
	resp, err := p.Complete(context.Background(), Request{Messages: AsMessages("hi")})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "done" || resp.FinishReason != FinishStop {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAICompat_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "", "test-model", "Test")
	_, err := p.Complete(context.Background(), Request{Messages: AsMessages("hi")})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}
}

func TestMapOAIFinish(t *testing.T) {
	cases := map[string]FinishReason{
		"stop":           FinishStop,
		"length":         FinishLength,
		"content_filter": FinishContentFilter,
		"tool_calls":     FinishToolCalls,
	}
	for in, want := range cases {
		if got := mapOAIFinish(in); got != want {
			t.Errorf("mapOAIFinish(%q) = %q, want %q", in, got, want)
		}
	}
}
