package transport

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestInFlightRegistryRegisterAndCancel(t *testing.T) {
	r := NewInFlightRegistry()

	cancelled := false
	r.Register("msg_abc123", "alice", func() { cancelled = true })

	if !r.Cancel("msg_abc123", "alice") {
		t.Error("Cancel should return true for registered ID")
	}
	if !cancelled {
		t.Error("cancel function should have been called")
	}

	// Second cancel should return false (already removed).
	if r.Cancel("msg_abc123", "alice") {
		t.Error("Cancel should return false after already cancelled")
	}
}

func TestInFlightRegistryCancelUnknown(t *testing.T) {
	r := NewInFlightRegistry()
	if r.Cancel("msg_nonexistent", "alice") {
		t.Error("Cancel should return false for unknown ID")
	}
}

func TestInFlightRegistryOtherOwner(t *testing.T) {
	r := NewInFlightRegistry()

	cancelled := false
	r.Register("msg_abc123", "alice", func() { cancelled = true })

	if r.Cancel("msg_abc123", "bob") {
		t.Error("Cancel should refuse a different owner")
	}
	if cancelled {
		t.Error("cancel function must not run for a different owner")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestInFlightRegistryRemove(t *testing.T) {
	r := NewInFlightRegistry()

	cancelled := false
	r.Register("msg_abc123", "alice", func() { cancelled = true })
	r.Remove("msg_abc123")

	if r.Cancel("msg_abc123", "alice") {
		t.Error("Cancel should return false after Remove")
	}
	if cancelled {
		t.Error("cancel function should not have been called after Remove")
	}
}

func TestInFlightRegistryConcurrent(t *testing.T) {
	r := NewInFlightRegistry()
	var count atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		id := "msg_" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(id, "alice", func() { count.Add(1) })
			r.Cancel(id, "alice")
		}()
	}
	wg.Wait()

	if got := count.Load(); got != 100 {
		t.Errorf("cancel count = %d, want 100", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}
