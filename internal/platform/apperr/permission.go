// Package apperr defines the structured error reported when a document store
// operation is denied or fails, and the emitter that carries it to a global
// handler.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/woundcare/woundcare/internal/platform/emitter"
)

// Operation identifies the kind of remote data operation that failed.
type Operation string

const (
	OpGet   Operation = "get"
	OpList  Operation = "list"
	OpWrite Operation = "write"
)

// EventPermissionError is the emitter event carrying *PermissionError values.
const EventPermissionError = "permission-error"

// Emitter is the emitter type shared by data-access code and the global
// error handler of a scope.
type Emitter = emitter.Emitter[*PermissionError]

// NewEmitter returns an Emitter for permission errors.
func NewEmitter() *Emitter {
	return emitter.New[*PermissionError]()
}

// PermissionError describes a failed document store operation with enough
// context to diagnose the rule that denied it.
type PermissionError struct {
	Operation           Operation      `json:"operation"`
	Path                string         `json:"path"`
	RequestResourceData map[string]any `json:"requestResourceData,omitempty"`
}

// NewPermissionError builds a PermissionError. data is the payload of a
// rejected write and is nil for reads.
func NewPermissionError(op Operation, path string, data map[string]any) *PermissionError {
	return &PermissionError{Operation: op, Path: path, RequestResourceData: data}
}

func (e *PermissionError) Error() string {
	body, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Sprintf("missing or insufficient permissions: %s %s", e.Operation, e.Path)
	}
	return "missing or insufficient permissions: the following request was denied by security rules:\n" + string(body)
}

// AsPermissionError unwraps err into a *PermissionError when it is one.
func AsPermissionError(err error) (*PermissionError, bool) {
	var pe *PermissionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
