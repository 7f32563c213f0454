package llm

import (
	"encoding/json"
	"time"
)

// ToolInvocation is one record of the invocation ledger: a call attempt with
// its timing, input, and outcome. Exactly one record is appended per tool
// call, success or failure.
type ToolInvocation struct {
	ID         string
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time
	Input      json.RawMessage
	OK         bool
	Output     string
	Error      string
}

// ledger is the append-only record of every tool invocation attempted during
// one top-level call. It is mutated only by the loop, never concurrently.
type ledger struct {
	records []ToolInvocation
}

func (l *ledger) append(rec ToolInvocation) {
	l.records = append(l.records, rec)
}

// Records returns a copy; the ledger itself stays append-only.
func (l *ledger) Records() []ToolInvocation {
	out := make([]ToolInvocation, len(l.records))
	copy(out, l.records)
	return out
}
