package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/convo-dev/convo/schema"
)

// validatedTool guards a tool's Execute with schema validation of the
// incoming arguments.
type validatedTool struct {
	inner     Tool
	validator *schema.Validator
}

// NewValidatedTool wraps a tool so its arguments are checked against the
// spec's schema before execution. Invalid arguments do not abort the call;
// the validation error is returned to the model as the tool's output so it
// can correct itself and retry. Tools without a schema pass through
// unchanged.
func NewValidatedTool(tool Tool) (Tool, error) {
	spec := tool.Spec()
	if spec.Schema == nil {
		return tool, nil
	}
	validator, err := schema.NewValidator(spec.Schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", spec.Name, err)
	}
	return &validatedTool{inner: tool, validator: validator}, nil
}

func (t *validatedTool) Spec() ToolSpec { return t.inner.Spec() }

func (t *validatedTool) Execute(ctx context.Context, args json.RawMessage) (ToolOutput, error) {
	if err := t.validator.Validate(args); err != nil {
		return TextOutput(fmt.Sprintf("invalid arguments: %s", err)), nil
	}
	return t.inner.Execute(ctx, args)
}
