package settings

import (
	"encoding/json"
)

// Trace captures provenance information for a property lookup across the
// containers, redirections, and parent delegations that produced the
// effective value.
type Trace struct {
	Key      string `json:"key"`
	Property string `json:"property"`
	Steps    []Step `json:"steps"`
}

// Step details how a single stage of the resolution contributed to a
// traced lookup.
type Step struct {
	StackID     string `json:"stack_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
	Action      string `json:"action"`
	Key         string `json:"key"`
	Property    string `json:"property,omitempty"`
	Value       any    `json:"value,omitempty"`
	Found       bool   `json:"found"`
}

// Actions recorded by Step entries.
const (
	TraceContainer = "container"
	TraceNextStack = "next_stack"
	TraceDelegate  = "delegate"
	TraceRedirect  = "redirect"
	TraceFormula   = "formula"
	TraceResolve   = "resolve"
)

func (t *Trace) add(step Step) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, step)
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
