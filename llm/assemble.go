package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// assembly reconstructs complete tool calls from streamed deltas. It lives
// for exactly one streaming round and is rebuilt for each subsequent round.
//
// Association contract: a delta that introduces a call ID starts a new call;
// a delta without an ID continues one. When the wire format carries an index
// the delta targets that call directly, which is how interleaved partial
// calls keep their argument fragments apart; without an index a continuation
// targets the most recently started call. Argument fragments are
// concatenated byte-for-byte.
type assembly struct {
	byIndex map[int]*partialCall
	order   []int
	current int
	nextIdx int

	// outputTerminated is set when the provider sends a finish marker;
	// fragments that arrive afterwards are dropped.
	outputTerminated bool
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newAssembly() *assembly {
	return &assembly{byIndex: make(map[int]*partialCall), current: -1}
}

func (a *assembly) addDelta(d ToolCallDelta) error {
	idx := d.Index
	switch {
	case d.HasIndex:
		if idx >= a.nextIdx {
			a.nextIdx = idx + 1
		}
	case d.ID != "":
		// No index on the wire: an ID opens the next call slot.
		idx = a.nextIdx
		a.nextIdx++
	default:
		if a.current < 0 {
			return fmt.Errorf("%w: tool call continuation with no open call", ErrMalformedFragment)
		}
		idx = a.current
	}

	call, ok := a.byIndex[idx]
	if !ok {
		call = &partialCall{}
		a.byIndex[idx] = call
		a.order = append(a.order, idx)
	}
	a.current = idx

	if d.ID != "" {
		call.id = d.ID
	}
	if d.Name != "" {
		call.name = d.Name
	}
	if d.Arguments != "" {
		call.args.WriteString(d.Arguments)
	}
	return nil
}

// calls returns the reconstructed tool calls in wire order.
func (a *assembly) calls() []ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	sort.Ints(a.order)
	out := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		call := a.byIndex[idx]
		if call == nil {
			continue
		}
		out = append(out, ToolCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: json.RawMessage(call.args.String()),
		})
	}
	return out
}
