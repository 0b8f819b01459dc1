package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitReachesMatchingListeners(t *testing.T) {
	m := NewManager()
	defer m.Close()

	failures := make(chan interface{}, 1)
	replaced := make(chan interface{}, 1)
	m.AddEventListener(OrderWriteFailed, func(msg interface{}) { failures <- msg })
	m.AddEventListener(SnapshotReplaced, func(msg interface{}) { replaced <- msg })

	m.EmitEvent(OrderWriteFailed, OrderFailure{Listing: "abc", Action: "purchase"})

	select {
	case msg := <-failures:
		require.IsType(t, OrderFailure{}, msg)
		assert.Equal(t, "abc", msg.(OrderFailure).Listing)
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}

	select {
	case <-replaced:
		t.Fatal("unrelated listener was called")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestManagersAreIndependent(t *testing.T) {
	a, b := NewManager(), NewManager()
	defer a.Close()
	defer b.Close()

	got := make(chan interface{}, 1)
	b.AddEventListener(PurchaseConfirmed, func(msg interface{}) { got <- msg })

	a.EmitEvent(PurchaseConfirmed, "a")

	select {
	case <-got:
		t.Fatal("event crossed managers")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	m := NewManager()
	m.AddEventListener(EscrowReleased, func(interface{}) {})
	m.Close()

	assert.NotPanics(t, func() { m.EmitEvent(EscrowReleased, "x") })
}

func TestSlowListenerDoesNotBlockEmit(t *testing.T) {
	m := NewManager()

	release := make(chan struct{})
	m.AddEventListener(SnapshotReplaced, func(interface{}) { <-release })

	emitted := make(chan struct{})
	go func() {
		for i := 0; i < listenerBuffer*4; i++ {
			m.EmitEvent(SnapshotReplaced, i)
		}
		close(emitted)
	}()

	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a slow listener")
	}

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close blocked on a slow listener")
	}
	close(release)
}
