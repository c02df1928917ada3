// Package genai runs prompt flows against a generative model: validate the
// input, render a prompt that embeds text and media, call the model and
// validate its structured output.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned when no model is configured.
var ErrModelUnavailable = errors.New("generative model is not configured")

// Part is one piece of a prompt: text or inline media.
type Part struct {
	Text  string
	Media *Media
}

// Request is a single generation call.
type Request struct {
	Parts []Part
	// Schema is the JSON schema of the expected response, in the subset
	// understood by the model API.
	Schema map[string]any
}

// Model generates a JSON response for a prompt.
type Model interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// ValidationError reports invalid flow input. It is returned before any
// call to the model.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SchemaValidationError reports model output that does not match the flow's
// declared output schema.
type SchemaValidationError struct {
	Flow string
	Err  error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: model output does not match schema: %v", e.Flow, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// Observer is told the outcome of every flow run.
type Observer interface {
	ObserveFlow(flow, outcome string)
}

// Flow outcomes reported to an Observer.
const (
	OutcomeOK            = "ok"
	OutcomeInvalidInput  = "invalid_input"
	OutcomeModelError    = "model_error"
	OutcomeInvalidOutput = "invalid_output"
)
