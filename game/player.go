package game

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Player is one websocket connection. The room field is owned by the read
// goroutine: it is set once the hub routes a successful join and read only
// there, so no locking is needed.
type Player struct {
	ID   string
	Name string

	hub  *Hub
	room *Room

	conn *websocket.Conn
	send chan []byte
}

// Enqueue hands a frame to the write pump without blocking. A slow client
// loses frames instead of stalling a room tick; every dropped frame is
// superseded by the next broadcast anyway.
func (p *Player) Enqueue(b []byte) {
	select {
	case p.send <- b:
	default:
	}
}

func (p *Player) enqueueJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("Error marshalling message")
		return
	}
	p.Enqueue(b)
}

func (p *Player) writePump() {
	defer p.conn.Close()

	for message := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readPump parses inbound frames and routes them: room selection goes
// through the hub, everything else is forwarded into the player's room loop.
// A disconnect is an implicit leave.
func (p *Player) readPump() {
	defer func() {
		if p.room != nil {
			p.room.leave <- p
		} else {
			close(p.send)
		}
		p.conn.Close()
		log.WithField("player", p.ID).Info("Player disconnected")
	}()

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.WithError(err).Warn("Dropping unparseable message")
			continue
		}

		switch env.Type {
		case "create_room":
			if p.room != nil {
				continue
			}
			var m CreateRoomMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				log.WithError(err).Warn("Dropping malformed create_room")
				continue
			}
			p.hub.CreateFor(p, m.PlayerName)
		case "join_room":
			if p.room != nil {
				continue
			}
			var m JoinRoomMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				log.WithError(err).Warn("Dropping malformed join_room")
				continue
			}
			p.hub.JoinFor(p, m.RoomID, m.PlayerName)
		default:
			if p.room == nil {
				continue
			}
			p.room.inbox <- playerMessage{player: p, msgType: env.Type, raw: raw}
		}
	}
}
