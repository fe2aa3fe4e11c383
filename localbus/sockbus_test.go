package localbus

import (
	"testing"
	"time"
)

func TestSocketBusCrossInstanceBroadcast(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenChannel(dir, "consoles")
	if err != nil {
		t.Fatalf("OpenChannel a: %v", err)
	}
	defer a.Close()
	b, err := OpenChannel(dir, "consoles")
	if err != nil {
		t.Fatalf("OpenChannel b: %v", err)
	}
	defer b.Close()

	subA := a.Subscribe()
	subB := b.Subscribe()

	msg := Message{Type: TypeNewInstanceOpened, ID: "a", OpenedAt: 42}
	if err := a.Broadcast(msg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	// Both ends receive it: b over the socket, a via local delivery.
	if got := recv(t, subB); got != msg {
		t.Errorf("peer received %+v, want %+v", got, msg)
	}
	if got := recv(t, subA); got != msg {
		t.Errorf("sender received %+v, want %+v", got, msg)
	}
}

func TestSocketBusSeparateChannelsDoNotLeak(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenChannel(dir, "alpha")
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer a.Close()
	b, err := OpenChannel(dir, "beta")
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer b.Close()

	subB := b.Subscribe()
	if err := a.Broadcast(Message{Type: TypeNewInstanceOpened, ID: "a"}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	select {
	case msg := <-subB.C:
		t.Errorf("message leaked across channels: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSocketBusSurvivesDeadPeer(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenChannel(dir, "consoles")
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer a.Close()
	dead, err := OpenChannel(dir, "consoles")
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	dead.Close()

	sub := a.Subscribe()
	msg := Message{Type: TypeInstanceAlreadyExists, TargetID: "x"}
	if err := a.Broadcast(msg); err != nil {
		t.Fatalf("Broadcast after peer death: %v", err)
	}
	if got := recv(t, sub); got != msg {
		t.Errorf("received %+v, want %+v", got, msg)
	}
}
