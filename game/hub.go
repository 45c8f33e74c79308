package game

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"mandown/config"
	"mandown/nats"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Hub maps connections to rooms. The registry itself is the only shared
// state and sits behind a lock; each room's state is owned by its own loop
// goroutine and reached through channels.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	tuning     Tuning
	maxPlayers int
	debugSolo  bool
}

func NewHub(conf config.Config) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		tuning:     MultiplayerTuning(),
		maxPlayers: conf.MaxPlayers,
		debugSolo:  conf.DebugSolo,
	}
}

// Room codes are short and shareable, unlike player ids.
func newRoomID() string {
	return strings.ToUpper(uuid.New().String()[:6])
}

func (h *Hub) CreateRoom() *Room {
	return h.createRoomWithID(newRoomID())
}

func (h *Hub) createRoomWithID(id string) *Room {
	return h.startRoom(newRoom(id, h, h.tuning, h.maxPlayers, h.debugSolo))
}

// startRoom registers the room and hands it its loop goroutine. Callers must
// not touch loop-owned state afterwards.
func (h *Hub) startRoom(room *Room) *Room {
	h.mu.Lock()
	h.rooms[room.ID] = room
	count := len(h.rooms)
	h.mu.Unlock()

	go room.Run()
	nats.Publish("mandown.room_created", []byte(room.ID))
	log.Printf("Created room %s. There are now %d running rooms", room.ID, count)
	return room
}

func (h *Hub) getRoom(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[id]
	return room, ok
}

// findAvailableRoom is the quick-match path: first WAITING room with
// capacity, else a fresh one.
func (h *Hub) findAvailableRoom() *Room {
	h.mu.RLock()
	for _, room := range h.rooms {
		if room.State() == RoomStateWaiting && room.PlayerCount() < h.maxPlayers {
			h.mu.RUnlock()
			return room
		}
	}
	h.mu.RUnlock()
	return h.CreateRoom()
}

func (h *Hub) removeRoom(id string) {
	h.mu.Lock()
	delete(h.rooms, id)
	count := len(h.rooms)
	h.mu.Unlock()
	log.Printf("Removed room %s. There are now %d running rooms", id, count)
}

func (h *Hub) RunningRoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// CreateFor handles a create_room request from a connection.
func (h *Hub) CreateFor(p *Player, name string) {
	h.joinRoom(p, h.CreateRoom(), name)
}

// JoinFor handles join_room: an explicit room id must name a joinable
// WAITING room, an empty id quick-matches.
func (h *Hub) JoinFor(p *Player, roomID, name string) {
	var room *Room
	if roomID != "" {
		existing, ok := h.getRoom(roomID)
		if !ok {
			p.enqueueJSON(ErrorMessage{Type: "error", Message: "Room not found"})
			return
		}
		if existing.State() != RoomStateWaiting {
			p.enqueueJSON(ErrorMessage{Type: "error", Message: "Game already started"})
			return
		}
		room = existing
	} else {
		room = h.findAvailableRoom()
	}

	h.joinRoom(p, room, name)
}

// joinRoom hands the player to the room loop and waits for the verdict. The
// room pointer may have been fetched just before the room tore itself down,
// so both the send and the wait also select on the room's done channel.
func (h *Hub) joinRoom(p *Player, room *Room, name string) {
	reply := make(chan error, 1)
	select {
	case room.join <- joinRequest{player: p, name: name, reply: reply}:
	case <-room.done:
		p.enqueueJSON(ErrorMessage{Type: "error", Message: "Room not found"})
		return
	}

	var err error
	select {
	case err = <-reply:
	case <-room.done:
		// The loop may still have answered before exiting.
		select {
		case err = <-reply:
		default:
			err = errors.New("Room not found")
		}
	}

	if err != nil {
		p.enqueueJSON(ErrorMessage{Type: "error", Message: err.Error()})
		return
	}
	p.room = room
}

// RestoreFromBackup recreates rooms that were live before a restart as
// empty WAITING shells. Websocket membership cannot survive a restart, so
// players rejoin by room code.
func (h *Hub) RestoreFromBackup() {
	for _, b := range LoadBackup() {
		h.restoreRoom(b)
		log.WithField("room", b.ID).Info("Restored room from backup at level ", b.CurrentLevel)
	}
}

func (h *Hub) restoreRoom(b RoomBackup) *Room {
	room := newRoom(b.ID, h, h.tuning, h.maxPlayers, h.debugSolo)
	room.currentLevel = b.CurrentLevel
	return h.startRoom(room)
}

// HandleConnection upgrades an HTTP request, assigns the player an opaque
// id and hands back the static game configuration before any room exists.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("Failed to upgrade connection to websocket")
		return
	}

	p := &Player{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}

	p.enqueueJSON(ConnectedMessage{
		Type:     "connected",
		PlayerID: p.ID,
		GameConfig: GameConfig{
			Width:               GameWidth,
			Height:              GameHeight,
			PlatformScrollSpeed: h.tuning.ScrollSpeed,
			PlatformGap:         h.tuning.Gap,
		},
	})

	go p.writePump()
	go p.readPump()

	log.WithField("player", p.ID).Info("Player connected")
}
