package core

import (
	"testing"
	"time"
)

func TestMessage_ConstructorAndChaining(t *testing.T) {
	m := NewMessage("node-a", "node-b", "text.process", "hello")
	if m.SourceID != "node-a" || m.TargetID != "node-b" || m.Type != "text.process" {
		t.Fatalf("NewMessage did not initialize fields correctly: %+v", m)
	}
	if m.Priority != PriorityNormal {
		t.Fatalf("expected normal default priority, got %q", m.Priority)
	}
	if m.ID != "" || m.Status != "" {
		t.Fatalf("id and status must be left for the bus to stamp: %+v", m)
	}

	m.WithPriority(PriorityHigh).WithStreaming()
	if m.Priority != PriorityHigh || !m.Streaming {
		t.Fatalf("chained setters failed: %+v", m)
	}
}

func TestMessageStatus_Terminal(t *testing.T) {
	terminal := []MessageStatus{StatusCompleted, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	open := []MessageStatus{StatusPending, StatusProcessing, StatusRetrying, StatusStreaming}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestMessage_CloneIsolation(t *testing.T) {
	m := NewMessage("a", "b", "t", nil)
	m.CurrentChunk = &StreamChunk{Sequence: 1, Data: "x"}
	m.Error = &MessageError{Code: "boom", Message: "failed"}
	m.Receipts = []DeliveryReceipt{{HandlerID: "h1", Attempts: 1}}

	c := m.Clone()
	c.CurrentChunk.Sequence = 99
	c.Error.Code = "other"
	c.Receipts[0].Attempts = 42

	if m.CurrentChunk.Sequence != 1 {
		t.Fatalf("chunk not isolated: %+v", m.CurrentChunk)
	}
	if m.Error.Code != "boom" {
		t.Fatalf("error not isolated: %+v", m.Error)
	}
	if m.Receipts[0].Attempts != 1 {
		t.Fatalf("receipts not isolated: %+v", m.Receipts)
	}
}

func TestDeliveryReceipt_Succeeded(t *testing.T) {
	ok := DeliveryReceipt{HandlerID: "h1", Attempts: 1}
	if !ok.Succeeded() {
		t.Error("receipt without error should report success")
	}
	bad := DeliveryReceipt{HandlerID: "h2", Attempts: 4, Err: "boom"}
	if bad.Succeeded() {
		t.Error("receipt with error should not report success")
	}
}

func TestDefaultRetryStrategy(t *testing.T) {
	rs := DefaultRetryStrategy()
	if rs.MaxRetries != 3 || rs.BaseDelay != 100*time.Millisecond || rs.MaxDelay != 5*time.Second || !rs.Exponential {
		t.Fatalf("unexpected default retry strategy: %+v", rs)
	}
}

func TestNewID_Uniqueness(t *testing.T) {
	a := NewID()
	b := NewID()
	if a == b {
		t.Error("Expected unique IDs")
	}
}
