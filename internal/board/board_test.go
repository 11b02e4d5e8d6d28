package board

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mujina-miner/mujina/internal/thermal"
)

func TestNewBoard_RegistrationSeedsInitialState(t *testing.T) {
	initial := BoardState{Name: "bitaxe", Serial: "abc123"}
	b, reg := NewBoard("abc123", "bitaxe", initial, thermal.NewController(thermal.DefaultConfig()), nil)

	assert.Equal(t, "abc123", b.ID())
	select {
	case s := <-reg.StateRx:
		assert.Equal(t, initial, s)
	default:
		t.Fatal("expected the watch channel to be pre-seeded")
	}
}

func TestBoard_PublishState_DropsStaleValueWhenFull(t *testing.T) {
	b, reg := NewBoard("id", "name", BoardState{Name: "v1"}, thermal.NewController(thermal.DefaultConfig()), nil)
	// Channel capacity is 1 and already holds "v1"; publishing twice more
	// should leave only the newest value, never block.
	b.PublishState(BoardState{Name: "v2"})
	b.PublishState(BoardState{Name: "v3"})

	select {
	case s := <-reg.StateRx:
		assert.Equal(t, "v3", s.Name)
	default:
		t.Fatal("expected a pending state")
	}
	select {
	case <-reg.StateRx:
		t.Fatal("expected exactly one pending state")
	default:
	}
}

func TestBoard_Shutdown_CallsHookOnce(t *testing.T) {
	calls := 0
	b, _ := NewBoard("id", "name", BoardState{}, thermal.NewController(thermal.DefaultConfig()), func(context.Context) {
		calls++
	})
	b.Shutdown(context.Background())
	b.Shutdown(context.Background())
	assert.Equal(t, 2, calls, "Board itself does not dedupe repeated Shutdown calls; callers that need once-semantics (e.g. virtual) wrap their own hook")
}

func TestTransportWatcher_DiffEmitsConnectAndDisconnect(t *testing.T) {
	w := NewTransportWatcher(time.Second, 8, nil)
	ctx := context.Background()

	prev := map[string]UsbDeviceInfo{
		"bus1/addr1": {VendorID: 1, ProductID: 2, Path: "bus1/addr1"},
	}
	current := map[string]UsbDeviceInfo{
		"bus1/addr2": {VendorID: 1, ProductID: 2, Path: "bus1/addr2"},
	}
	w.diff(ctx, prev, current)

	events := drainEvents(w)
	assert.Len(t, events, 2)

	var sawConnect, sawDisconnect bool
	for _, e := range events {
		switch e.Kind {
		case UsbDeviceConnected:
			sawConnect = true
			assert.Equal(t, "bus1/addr2", e.Info.Path)
		case UsbDeviceDisconnected:
			sawDisconnect = true
			assert.Equal(t, "bus1/addr1", e.Info.Path)
		}
	}
	assert.True(t, sawConnect)
	assert.True(t, sawDisconnect)
}

func drainEvents(w *TransportWatcher) []TransportEvent {
	var out []TransportEvent
	for {
		select {
		case e := <-w.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
