package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan engine.Event, within time.Duration) engine.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return evt
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return engine.Event{} // unreachable
	}
}

func recvNoEvent(t *testing.T, ch <-chan engine.Event, within time.Duration) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			// channel closed → fine; no further events possible
			return
		}
		t.Fatalf("expected no event within %v, but got: %+v", within, evt)
	case <-time.After(within):
		// good: no event
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func TestLobby_Deliver_BroadcastsToEveryClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "m1", nil)

	a := make(chan engine.Event, 2)
	b := make(chan engine.Event, 2)
	l.Inbox() <- Join{ClientID: "a", Outbox: a}
	l.Inbox() <- Join{ClientID: "b", Outbox: b}

	l.Inbox() <- Deliver{Event: engine.Event{Type: engine.EvtRoundStarted, MatchID: "m1", Version: 2, Round: 1}}

	for _, ch := range []chan engine.Event{a, b} {
		evt := recvEvent(t, ch, 100*time.Millisecond)
		require.Equal(t, engine.EvtRoundStarted, evt.Type)
		require.Equal(t, int64(2), evt.Version)
	}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 100*time.Millisecond)
	require.Equal(t, View{MatchID: "m1", Version: 2, NumClients: 2, Delivered: 1}, view)

	l.Inbox() <- Shutdown{}
}

func TestLobby_DropsStaleVersions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "m1", nil)
	out := make(chan engine.Event, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	l.Inbox() <- Deliver{Event: engine.Event{Type: engine.EvtRoundEnded, Version: 5}}
	l.Inbox() <- Deliver{Event: engine.Event{Type: engine.EvtRoundStarted, Version: 5}}
	l.Inbox() <- Deliver{Event: engine.Event{Type: engine.EvtActionRecorded, Version: 4}}

	require.Equal(t, engine.EvtRoundEnded, recvEvent(t, out, 100*time.Millisecond).Type)
	require.Equal(t, engine.EvtRoundStarted, recvEvent(t, out, 100*time.Millisecond).Type)
	recvNoEvent(t, out, 100*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "m1", nil)

	clientOut := make(chan engine.Event) // unbuffered and never read
	l.Inbox() <- Join{ClientID: "ch1", Outbox: clientOut}
	l.Inbox() <- Deliver{Event: engine.Event{Type: engine.EvtTurnStarted, Version: 1}}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 100*time.Millisecond)

	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	_, ok := <-clientOut
	require.False(t, ok, "dropped client's outbox must be closed")
}

func TestLobby_Leave_ClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "m1", nil)
	out := make(chan engine.Event, 1)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	l.Inbox() <- Leave{ClientID: "c1"}

	select {
	case _, ok := <-out:
		require.False(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("outbox not closed after leave")
	}
}

func TestLobby_Shutdown_ClosesClientsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "m1", nil)
	out := make(chan engine.Event, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	l.Inbox() <- Shutdown{}

	recvNoEvent(t, out, 100*time.Millisecond)
	select {
	case <-l.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("lobby did not stop")
	}
}
