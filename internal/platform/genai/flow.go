package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Flow is a schema checked request/response call to a model. In is
// validated by Check before anything else happens; the model's response is
// decoded into Out and validated with its `validate` struct tags.
type Flow[In, Out any] struct {
	Name   string
	Prompt *Prompt
	Schema map[string]any
	Check  func(In) error

	model    Model
	observer Observer
}

// NewFlow creates a flow bound to model. observer may be nil.
func NewFlow[In, Out any](name string, prompt *Prompt, schema map[string]any, check func(In) error, model Model, observer Observer) *Flow[In, Out] {
	return &Flow[In, Out]{Name: name, Prompt: prompt, Schema: schema, Check: check, model: model, observer: observer}
}

// Run executes the flow.
func (f *Flow[In, Out]) Run(ctx context.Context, in In) (*Out, error) {
	if f.Check != nil {
		if err := f.Check(in); err != nil {
			f.observe(OutcomeInvalidInput)
			return nil, err
		}
	}
	parts, err := f.Prompt.Render(in)
	if err != nil {
		f.observe(OutcomeInvalidInput)
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, &ValidationError{Field: "input", Message: err.Error()}
	}
	if f.model == nil {
		f.observe(OutcomeModelError)
		return nil, ErrModelUnavailable
	}

	raw, err := f.model.Generate(ctx, Request{Parts: parts, Schema: f.Schema})
	if err != nil {
		f.observe(OutcomeModelError)
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}

	out := new(Out)
	if err := json.Unmarshal(raw, out); err != nil {
		f.observe(OutcomeInvalidOutput)
		return nil, &SchemaValidationError{Flow: f.Name, Err: err}
	}
	if err := validate.Struct(out); err != nil {
		f.observe(OutcomeInvalidOutput)
		return nil, &SchemaValidationError{Flow: f.Name, Err: err}
	}
	f.observe(OutcomeOK)
	return out, nil
}

func (f *Flow[In, Out]) observe(outcome string) {
	if f.observer != nil {
		f.observer.ObserveFlow(f.Name, outcome)
	}
}
