package usage

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// Estimator predicts input token counts before a request is sent, for
// callers that budget history pruning against a context window.
type Estimator struct {
	enc *tiktoken.Tiktoken
	err error
	mu  sync.Mutex
}

// NewEstimator builds an estimator for the given model. Models unknown to
// the tokenizer registry fall back to cl100k_base, which is close enough
// for budgeting.
func NewEstimator(model string) *Estimator {
	e := &Estimator{}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		e.err = fmt.Errorf("load tokenizer: %w", err)
		return e
	}
	e.enc = enc
	return e
}

// Count returns the token count of the text.
func (e *Estimator) Count(text string) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.enc.Encode(text, nil, nil)), nil
}

// CountAll sums token counts over several texts plus a fixed per-message
// overhead approximating chat framing tokens.
func (e *Estimator) CountAll(texts ...string) (int, error) {
	const perMessageOverhead = 4
	total := 0
	for _, text := range texts {
		n, err := e.Count(text)
		if err != nil {
			return 0, err
		}
		total += n + perMessageOverhead
	}
	return total, nil
}
