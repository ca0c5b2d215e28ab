package mclerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestOfUnwrapsWrappedError(t *testing.T) {
	base := New(NotFound, "workflow missing")
	wrapped := fmt.Errorf("get workflow: %w", base)

	if got := Of(wrapped); got != NotFound {
		t.Fatalf("Of(wrapped) = %v, want %v", got, NotFound)
	}
}

func TestOfReturnsFailForForeignError(t *testing.T) {
	if got := Of(errors.New("boom")); got != Fail {
		t.Fatalf("Of(foreign) = %v, want %v", got, Fail)
	}
}

func TestOfReturnsOKForNil(t *testing.T) {
	if got := Of(nil); got != OK {
		t.Fatalf("Of(nil) = %v, want %v", got, OK)
	}
}

func TestErrorIsMatchesSameCode(t *testing.T) {
	a := New(Unauthorized, "token expired")
	b := New(Unauthorized, "different message")

	if !errors.Is(a, b) {
		t.Fatalf("errors.Is should match on Code alone")
	}
}

func TestErrorIsRejectsDifferentCode(t *testing.T) {
	a := New(Unauthorized, "x")
	b := New(BadRequest, "x")

	if errors.Is(a, b) {
		t.Fatalf("errors.Is should not match across codes")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(RequestTimeout, "send request", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("Wrap should preserve the cause for errors.Is")
	}
	if got := Of(err); got != RequestTimeout {
		t.Fatalf("Of(err) = %v, want %v", got, RequestTimeout)
	}
}

func TestCodeStringKnownAndUnknown(t *testing.T) {
	if BadRequest.String() != "BAD_REQUEST" {
		t.Fatalf("BadRequest.String() = %q", BadRequest.String())
	}
	unknown := Code(9999)
	if unknown.String() == "" {
		t.Fatalf("unknown code must still stringify")
	}
}
