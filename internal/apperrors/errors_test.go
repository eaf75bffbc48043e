package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCarriesKindCodeAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Upstream("messaging.open_conversation", "conversation_insert_failed", cause)

	if KindOf(err) != KindUpstreamFailure {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be unwrapped")
	}
	if err.Error() != "messaging.open_conversation.conversation_insert_failed: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if ReasonOf(err) != "conversation_insert_failed" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("handler: %w", InvalidRequest("messaging.send", "empty_content", nil))
	if !Is(err, KindInvalidRequest) {
		t.Fatalf("expected invalid request kind through wrapping, got %q", KindOf(err))
	}
}

func TestKindOfForeignErrorIsUpstream(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUpstreamFailure {
		t.Fatalf("expected foreign error to classify as upstream failure")
	}
	if KindOf(nil) != "" {
		t.Fatalf("expected empty kind for nil error")
	}
	if ReasonOf(errors.New("boom")) != "internal" {
		t.Fatalf("expected internal reason for foreign error")
	}
}
