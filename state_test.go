package tuyalan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateBroadcaster_DeliversToSubscriber(t *testing.T) {
	b := newStateBroadcaster(StateDisconnected)
	ch := b.subscribe()

	b.set(StateChange{State: StateConnecting})

	select {
	case sc := <-ch:
		require.Equal(t, StateConnecting, sc.State)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state change")
	}
}

func TestStateBroadcaster_GetReflectsLatest(t *testing.T) {
	b := newStateBroadcaster(StateDisconnected)
	b.set(StateChange{State: StateConnected})
	require.Equal(t, StateConnected, b.get().State)
}

func TestStateBroadcaster_DropsOldestOnFullSubscriber(t *testing.T) {
	b := newStateBroadcaster(StateDisconnected)
	ch := b.subscribe()

	// Fill the subscriber's buffer (capacity 4) without reading.
	for i := 0; i < 10; i++ {
		b.set(StateChange{State: StateConnecting})
	}
	b.set(StateChange{State: StateFailed})

	var last StateChange
	for {
		select {
		case sc := <-ch:
			last = sc
			continue
		default:
		}
		break
	}
	require.Equal(t, StateFailed, last.State)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "unknown", State(99).String())
}
