package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodedErrorWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save: %w", NewError(CodeRenderFailure, "write snapshot", cause))

	if got, want := Code(err), CodeRenderFailure; got != want {
		t.Fatalf("Code() = %q; want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if got, want := NewError(CodeValidation, "bad width", nil).Error(), "VALIDATION: bad width"; got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}
	if got := Code(cause); got != "" {
		t.Fatalf("Code(plain) = %q; want empty", got)
	}
}
