package game

import (
	"encoding/json"
	"testing"
	"time"

	"mandown/config"
)

func newTestHub() *Hub {
	return NewHub(config.Config{MaxPlayers: 4, DebugSolo: true})
}

func newConnectedPlayer(h *Hub, id string) *Player {
	return &Player{ID: id, hub: h, send: make(chan []byte, 256)}
}

// waitForState polls a room's state mirror; hub tests run against live room
// loops, so transitions land asynchronously.
func waitForState(t *testing.T, r *Room, want RoomState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s state %s, want %s", r.ID, r.State(), want)
}

func lastErrorMessage(t *testing.T, p *Player) string {
	t.Helper()
	msg := ""
	for {
		select {
		case raw := <-p.send:
			var m ErrorMessage
			if err := json.Unmarshal(raw, &m); err == nil && m.Type == "error" {
				msg = m.Message
			}
		default:
			return msg
		}
	}
}

func TestCreateForAssignsShortRoomCode(t *testing.T) {
	h := newTestHub()
	p := newConnectedPlayer(h, "p1")

	h.CreateFor(p, "alice")

	if p.room == nil {
		t.Fatal("player not placed in a room")
	}
	if len(p.room.ID) != 6 {
		t.Fatalf("room code %q, want 6 characters", p.room.ID)
	}
	if p.room.PlayerCount() != 1 {
		t.Fatalf("room has %d players, want 1", p.room.PlayerCount())
	}
}

func TestQuickMatchReusesWaitingRoom(t *testing.T) {
	h := newTestHub()
	p1 := newConnectedPlayer(h, "p1")
	p2 := newConnectedPlayer(h, "p2")

	h.JoinFor(p1, "", "alice")
	h.JoinFor(p2, "", "bob")

	if p1.room == nil || p2.room == nil {
		t.Fatal("quick match left a player without a room")
	}
	if p1.room != p2.room {
		t.Fatalf("quick match split players across rooms %s and %s", p1.room.ID, p2.room.ID)
	}
	if n := len(h.RunningRoomIDs()); n != 1 {
		t.Fatalf("%d rooms running, want 1", n)
	}
}

func TestJoinUnknownRoomRejected(t *testing.T) {
	h := newTestHub()
	p := newConnectedPlayer(h, "p1")

	h.JoinFor(p, "NOSUCH", "alice")

	if p.room != nil {
		t.Fatal("player placed in a room that does not exist")
	}
	if msg := lastErrorMessage(t, p); msg != "Room not found" {
		t.Fatalf("error %q, want Room not found", msg)
	}
}

func TestJoinStartedRoomRejected(t *testing.T) {
	h := newTestHub()
	p1 := newConnectedPlayer(h, "p1")
	h.JoinFor(p1, "", "alice")
	room := p1.room

	room.inbox <- playerMessage{player: p1, msgType: "player_ready", raw: []byte(`{"ready":true}`)}
	waitForState(t, room, RoomStateCountdown)

	p2 := newConnectedPlayer(h, "p2")
	h.JoinFor(p2, room.ID, "bob")

	if p2.room != nil {
		t.Fatal("player joined a room past WAITING")
	}
	if msg := lastErrorMessage(t, p2); msg != "Game already started" {
		t.Fatalf("error %q, want Game already started", msg)
	}
}

// A joiner can fetch a room from the registry just before its last player
// leaves. The join must still be answered, not left in the buffer of a dead
// loop.
func TestJoinAfterTeardownAnswered(t *testing.T) {
	h := newTestHub()
	p1 := newConnectedPlayer(h, "p1")
	h.JoinFor(p1, "", "alice")
	room := p1.room

	room.leave <- p1
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.getRoom(room.ID); !ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	p2 := newConnectedPlayer(h, "p2")
	returned := make(chan struct{})
	go func() {
		h.joinRoom(p2, room, "bob")
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("join into a torn-down room never returned")
	}
	if p2.room != nil {
		t.Fatal("player placed in a torn-down room")
	}
	if msg := lastErrorMessage(t, p2); msg != "Room not found" {
		t.Fatalf("error %q, want Room not found", msg)
	}
}

func TestRestoreAppliesSavedLevel(t *testing.T) {
	h := newTestHub()

	room := h.restoreRoom(RoomBackup{ID: "SAVED1", CurrentLevel: 7})

	if _, ok := h.getRoom("SAVED1"); !ok {
		t.Fatal("restored room not registered")
	}
	if room.State() != RoomStateWaiting {
		t.Fatalf("restored room state %s, want waiting", room.State())
	}
	if room.currentLevel != 7 {
		t.Fatalf("restored room level %d, want the backed-up 7", room.currentLevel)
	}
}

func TestRoomTornDownWhenLastPlayerLeaves(t *testing.T) {
	h := newTestHub()
	p := newConnectedPlayer(h, "p1")
	h.JoinFor(p, "", "alice")
	room := p.room

	room.leave <- p

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.getRoom(room.ID); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s still registered after its last player left", room.ID)
}
