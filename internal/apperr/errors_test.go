package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusErrorMatchesServiceError(t *testing.T) {
	err := fmt.Errorf("inference: chat: %w", &StatusError{Service: "ollama", StatusCode: 500, Body: "boom"})
	if !errors.Is(err, ErrServiceError) {
		t.Fatal("StatusError should match ErrServiceError")
	}
	if errors.Is(err, ErrServiceUnreachable) {
		t.Fatal("StatusError must not match ErrServiceUnreachable")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 500 {
		t.Fatalf("errors.As = %+v", se)
	}
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		"UnknownTool":        fmt.Errorf("x: %w", ErrUnknownTool),
		"NoteNotFound":       ErrNoteNotFound,
		"ServiceError":       &StatusError{Service: "s", StatusCode: 404},
		"ServiceUnreachable": fmt.Errorf("dial: %w", ErrServiceUnreachable),
		"internal":           errors.New("other"),
		"":                   nil,
	}
	for want, err := range cases {
		if got := Kind(err); got != want {
			t.Errorf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
}
