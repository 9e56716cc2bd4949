package rterr

import (
	"errors"
	"testing"
)

func TestWrapPreservesKind(t *testing.T) {
	orig := New(NetworkUnreachable, "ping failed")
	wrapped := Wrap(orig, "verify connectivity")

	if wrapped.Kind != NetworkUnreachable {
		t.Errorf("Kind = %v, want NetworkUnreachable", wrapped.Kind)
	}
	if KindOf(wrapped) != NetworkUnreachable {
		t.Errorf("KindOf(wrapped) = %v, want NetworkUnreachable", KindOf(wrapped))
	}
}

func TestWrapDefaultsUntypedToSpawnFailed(t *testing.T) {
	wrapped := Wrap(errors.New("boom"), "start init process")
	if wrapped.Kind != SpawnFailed {
		t.Errorf("Kind = %v, want SpawnFailed", wrapped.Kind)
	}
}

func TestKindOfNilIsEmpty(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestInvalidCarriesField(t *testing.T) {
	err := Invalid("memory_mb", "must be in [64, 2048]")
	if err.Field != "memory_mb" {
		t.Errorf("Field = %q", err.Field)
	}
	if err.Kind != InvalidArgument {
		t.Errorf("Kind = %v, want InvalidArgument", err.Kind)
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Of(SpawnFailed, "exec", cause)
	if !errors.Is(err, cause) && errors.Unwrap(err) == nil {
		t.Error("expected Unwrap to expose the underlying cause")
	}
}
