package apperr

import (
	"fmt"
	"strings"
	"testing"
)

func TestPermissionError_MessageIncludesContext(t *testing.T) {
	pe := NewPermissionError(OpWrite, "users/u1", map[string]any{"role": "patient"})
	msg := pe.Error()

	for _, want := range []string{`"operation": "write"`, `"path": "users/u1"`, `"role": "patient"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message to contain %s, got %s", want, msg)
		}
	}
}

func TestPermissionError_ReadOmitsResourceData(t *testing.T) {
	pe := NewPermissionError(OpList, "users/u1/reports", nil)
	if strings.Contains(pe.Error(), "requestResourceData") {
		t.Errorf("read errors should not carry request data: %s", pe.Error())
	}
}

func TestAsPermissionError(t *testing.T) {
	pe := NewPermissionError(OpGet, "users/u1", nil)
	wrapped := fmt.Errorf("loading role: %w", pe)

	got, ok := AsPermissionError(wrapped)
	if !ok || got != pe {
		t.Fatalf("expected to unwrap the permission error, got %v %v", got, ok)
	}
	if _, ok := AsPermissionError(fmt.Errorf("other")); ok {
		t.Fatal("plain errors are not permission errors")
	}
}

func TestEmitter_CarriesPermissionErrors(t *testing.T) {
	em := NewEmitter()
	var got *PermissionError
	off := em.On(EventPermissionError, func(pe *PermissionError) { got = pe })
	defer off()

	pe := NewPermissionError(OpList, "users/u1/anamnesis", nil)
	if n := em.Emit(EventPermissionError, pe); n != 1 {
		t.Fatalf("expected one handler, got %d", n)
	}
	if got != pe {
		t.Fatal("handler did not receive the emitted error")
	}
}
