package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesKind(t *testing.T) {
	err := New(KindPluginNotFound, "plugin \"x\" not found")
	if !Is(err, KindPluginNotFound) {
		t.Errorf("expected Is to match the error's own kind")
	}
	if Is(err, KindProtocol) {
		t.Errorf("Is must not match a different kind")
	}
}

func TestIs_FalseForPlainError(t *testing.T) {
	if Is(errors.New("boom"), KindProtocol) {
		t.Errorf("Is must return false for an error that isn't *errs.Error")
	}
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := Wrap(KindProtocol, "exchange failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is must see through Wrap to the underlying cause")
	}
	if got := err.Error(); got == "" || got == fmt.Sprintf("%s", KindProtocol) {
		t.Errorf("Error() should include both message and cause, got %q", got)
	}
}
