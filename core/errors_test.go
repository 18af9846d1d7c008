package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorTaxonomy_MessagesAndUnwrap(t *testing.T) {
	reg := &RegistrationError{NodeType: "echo", Reason: "category mismatch"}
	if reg.Error() == "" || !errors.As(error(reg), new(*RegistrationError)) {
		t.Fatalf("registration error malformed: %v", reg)
	}

	ver := &VersionIncompatibilityError{NodeType: "echo", Requested: "2.0.0", Registered: "1.4.1"}
	if ver.Error() == "" {
		t.Fatal("version error should render")
	}

	val := &ValidationError{Kind: "edge", ID: "e1", Reason: "dataType mismatch"}
	if val.Error() == "" {
		t.Fatal("validation error should render")
	}
	var ve *ValidationError
	if !errors.As(fmt.Errorf("wrapped: %w", val), &ve) || ve.ID != "e1" {
		t.Fatalf("validation error lost through wrapping: %v", ve)
	}

	hnf := &HandlerNotFoundError{MessageType: "text.process"}
	if hnf.Error() == "" {
		t.Fatal("handler-not-found error should render")
	}

	inner := errors.New("boom")
	rex := &RetryExhaustedError{Attempts: 4, Err: inner}
	if !errors.Is(rex, inner) {
		t.Fatal("RetryExhaustedError must unwrap to the last attempt error")
	}

	ase := &AgentStateError{Op: "pause", State: AgentIdle}
	if ase.Error() == "" {
		t.Fatal("agent state error should render")
	}

	toe := &ExecutionTimeoutError{NodeID: "n1", Timeout: time.Second}
	if toe.Error() == "" {
		t.Fatal("timeout error should render")
	}
}

func TestValidationError_WithoutID(t *testing.T) {
	err := &ValidationError{Kind: "flow", Reason: "nodes array missing"}
	if err.Error() == "" {
		t.Fatal("expected rendered message")
	}
}

func TestSentinels_Distinct(t *testing.T) {
	if errors.Is(ErrKeyNotFound, ErrMessageNotFound) {
		t.Fatal("sentinels must be distinct")
	}
}
