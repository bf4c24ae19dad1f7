package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/pickup-room-sync/internal/room"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan room.Event, within time.Duration) room.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatalf("subscriber outbox closed unexpectedly")
		}
		return e
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return room.Event{} // unreachable
	}
}

func recvNoEvent(t *testing.T, ch <-chan room.Event, within time.Duration) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further events possible
			return
		}
		t.Fatalf("expected no event within %v, but got: %+v", within, e)
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

func recvResult(t *testing.T, ch <-chan Result, within time.Duration) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(within):
		t.Fatalf("timed out waiting for result")
		return Result{} // unreachable
	}
}

func TestLobby_Apply_BroadcastsEventAndVersionIncrements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, room.NewEmptyState())

	out := make(chan room.Event, 2)
	l.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}

	reply := make(chan Result, 1)
	join := room.NewEvent(room.EvtParticipantJoined, "alice")
	l.Inbox() <- Apply{Event: join, Reply: reply}

	res := recvResult(t, reply, 100*time.Millisecond)
	if !res.Changed || res.Version != 1 {
		t.Fatalf("after join: want changed at version 1, got %+v", res)
	}
	if got := recvEvent(t, out, 100*time.Millisecond); got != join {
		t.Fatalf("broadcast: want %+v, got %+v", join, got)
	}

	views := make(chan View, 1)
	l.Inbox() <- GetState{Reply: views}
	v := recvView(t, views, 100*time.Millisecond)
	if len(v.State.Participants) != 1 || v.State.Participants[0] != "alice" {
		t.Fatalf("expected participants [alice], got %+v", v.State)
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_DuplicateEventIsNotBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, room.State{Participants: []string{"alice"}})

	out := make(chan room.Event, 2)
	l.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}

	reply := make(chan Result, 1)
	l.Inbox() <- Apply{Event: room.NewEvent(room.EvtParticipantJoined, "alice"), Reply: reply}
	if res := recvResult(t, reply, 100*time.Millisecond); res.Changed || res.Version != 0 {
		t.Fatalf("duplicate join should be a no-op, got %+v", res)
	}
	recvNoEvent(t, out, 50*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, room.NewEmptyState())

	out := make(chan room.Event, 1)
	l.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}

	l.Inbox() <- Apply{Event: room.NewEvent(room.EvtParticipantJoined, "alice")}
	l.Inbox() <- Apply{Event: room.NewEvent(room.EvtParticipantJoined, "bob")}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 100*time.Millisecond)

	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	if view.Version != 2 {
		t.Fatalf("state must still advance; version=%d", view.Version)
	}

	_ = recvEvent(t, out, 100*time.Millisecond)
	if _, ok := <-out; ok {
		t.Fatalf("dropped client outbox should be closed")
	}
}

func TestLobby_Unsubscribe_ClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, room.NewEmptyState())

	out := make(chan room.Event, 1)
	l.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}
	l.Inbox() <- Unsubscribe{ClientID: "c1"}
	l.Inbox() <- Unsubscribe{ClientID: "c1"} // second one is a no-op

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox not closed after unsubscribe")
	}
}

func TestLobby_Shutdown_ClosesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, room.NewEmptyState())

	out := make(chan room.Event, 2)
	l.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}
	l.Inbox() <- Shutdown{}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox after shutdown")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox not closed after shutdown")
	}

	select {
	case <-l.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("lobby did not shut down")
	}
}

func TestLobby_SendAfterParentCancelDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLobby(ctx, room.NewEmptyState())
	cancel()
	<-l.Done()

	// Fill the inbox; once full, Send must report failure instead of hanging.
	sent := 0
	for i := 0; i < 100; i++ {
		if !l.Send(Unsubscribe{ClientID: "nobody"}) {
			break
		}
		sent++
	}
	if sent >= 100 {
		t.Fatalf("send kept succeeding after shutdown")
	}
}
