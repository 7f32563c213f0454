package llm

import (
	"sync"
	"time"
)

// HistoryStore is the conversation log the engine reads and appends. The
// engine owns all mutation during a call; implementations may persist
// messages and outlive the call (see the session package).
type HistoryStore interface {
	Append(msgs ...Message) error
	Messages() ([]Message, error)
}

// HistoryOptions bound an in-memory history. Zero values disable the
// corresponding bound.
type HistoryOptions struct {
	// MaxMessages caps the number of retained messages. Pruning keeps the
	// leading system message and never strands a tool result from the
	// assistant message that requested it.
	MaxMessages int
	// MaxAge drops messages older than this on append.
	MaxAge time.Duration
}

// History is the default in-memory history log: an append-only ordered
// message sequence with an optional size/age pruning policy. Reads return
// copies; messages are never shared outside the log.
type History struct {
	mu   sync.RWMutex
	msgs []Message
	at   []time.Time
	opts HistoryOptions

	now func() time.Time // test hook
}

func NewHistory(opts HistoryOptions) *History {
	return &History{opts: opts, now: time.Now}
}

func (h *History) Append(msgs ...Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for _, msg := range msgs {
		h.msgs = append(h.msgs, msg)
		h.at = append(h.at, now)
	}
	h.prune(now)
	return nil
}

func (h *History) Messages() ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out, nil
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// prune applies the age bound then the size bound. The leading system
// message always survives; a cut that would land between an assistant
// tool-call message and its tool results is moved past the results so the
// provider never sees an orphaned tool message.
func (h *History) prune(now time.Time) {
	start := 0
	keepSystem := len(h.msgs) > 0 && h.msgs[0].Role == RoleSystem
	if keepSystem {
		start = 1
	}

	cut := start
	if h.opts.MaxAge > 0 {
		oldest := now.Add(-h.opts.MaxAge)
		for cut < len(h.msgs) && h.at[cut].Before(oldest) {
			cut++
		}
	}
	if h.opts.MaxMessages > 0 {
		limit := h.opts.MaxMessages
		if keepSystem {
			limit--
		}
		if over := len(h.msgs) - cut - limit; over > 0 {
			cut += over
		}
	}

	// Never start the retained window on a tool result.
	for cut < len(h.msgs) && h.msgs[cut].Role == RoleTool {
		cut++
	}

	if cut <= start {
		return
	}
	if keepSystem {
		h.msgs = append(h.msgs[:1], h.msgs[cut:]...)
		h.at = append(h.at[:1], h.at[cut:]...)
	} else {
		h.msgs = h.msgs[cut:]
		h.at = h.at[cut:]
	}
}
