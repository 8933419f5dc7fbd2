package agent

import (
	"encoding/json"
	"sync"

	"github.com/goosehq/goose/pkg/types"
)

// FinalOutputToolName is the synthetic tool a recipe with a response
// schema exposes; calling it terminates the loop with a structured
// value.
const FinalOutputToolName = "final_output"

// finalOutputContinuationText nudges the model when a turn produced no
// tool call but the final output is still unfilled.
const finalOutputContinuationText = "You have not provided the final output yet. Call the final_output tool now with the structured result of this task."

// finalOutputState holds the declared schema and, once the tool has been
// called, the stored value.
type finalOutputState struct {
	mu     sync.Mutex
	schema map[string]any
	value  *string
}

func newFinalOutputState(schema map[string]any) *finalOutputState {
	return &finalOutputState{schema: schema}
}

// tool renders the synthetic tool descriptor.
func (s *finalOutputState) tool() types.Tool {
	schemaJSON, _ := json.Marshal(s.schema)
	return types.Tool{
		Name:        FinalOutputToolName,
		Description: "Provide the structured final output of this task. Call this exactly once, when the task is complete.",
		InputSchema: schemaJSON,
		Annotations: &types.ToolAnnotations{ReadOnlyHint: true},
	}
}

// store records the tool's argument payload as the final value.
func (s *finalOutputState) store(args json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := string(args)
	s.value = &v
}

// get returns the stored value, if filled.
func (s *finalOutputState) get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return "", false
	}
	return *s.value, true
}

// clear resets the stored value for a retry round.
func (s *finalOutputState) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = nil
}

// finalOutputState returns the agent's final-output state, if configured.
func (a *Agent) finalOutputState() *finalOutputState {
	a.finalMu.Lock()
	defer a.finalMu.Unlock()
	return a.finalOutput
}
