package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("429 Too Many Requests"), KindRateLimited},
		{errors.New("rate limit exceeded"), KindRateLimited},
		{errors.New("read tcp: i/o timeout"), KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("conversation already has an active response"), KindProtocol},
		{errors.New("session not initialized"), KindProtocol},
		{errors.New("invalid session state"), KindProtocol},
		{errors.New("websocket: connection closed"), KindConnection},
		{errors.New("dial tcp: connection refused"), KindConnection},
		{errors.New("500 Internal Server Error"), KindModelUnavailable},
		{errors.New("server_error"), KindModelUnavailable},
		{errors.New("model_not_found"), KindModelUnavailable},
		{errors.New("something else entirely"), KindUnknown},
	}
	for _, tt := range tests {
		if got := Classify("op", tt.err).Kind; got != tt.want {
			t.Errorf("Classify(%q) kind = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClassifyPreservesExplicitKind(t *testing.T) {
	inner := NewError(KindProtocol, "stream.event", errors.New("active response"))
	wrapped := fmt.Errorf("retry failed: %w", inner)
	if got := Classify("outer", wrapped).Kind; got != KindProtocol {
		t.Errorf("kind = %v, want KindProtocol", got)
	}
}

func TestFallbackEligible(t *testing.T) {
	eligible := []ErrorKind{KindConnection, KindTimeout, KindProtocol}
	for _, k := range eligible {
		if !FallbackEligible(NewError(k, "op", errors.New("x"))) {
			t.Errorf("kind %v should be fallback eligible", k)
		}
	}
	ineligible := []ErrorKind{KindRateLimited, KindModelUnavailable, KindUnknown}
	for _, k := range ineligible {
		if FallbackEligible(NewError(k, "op", errors.New("x"))) {
			t.Errorf("kind %v should not be fallback eligible", k)
		}
	}
	if FallbackEligible(errors.New("plain error")) {
		t.Error("unwrapped errors are not fallback eligible")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewError(KindConnection, "stream.dial", inner)
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	if KindOf(fmt.Errorf("wrap: %w", err)) != KindConnection {
		t.Error("KindOf should see through wrapping")
	}
}
