// Package client implements the game-agnostic half of a multiplayer client:
// the websocket session with its message dispatch, and the local world state
// that predicts platform scrolling and smooths remote players between frames.
// The rendering engine plugs in through the Body and Scheduler interfaces.
package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"mandown/game"
)

// Handlers receives decoded server frames. Nil fields are skipped. Callbacks
// run on the client's read goroutine; hand off to the game loop before
// touching World.
type Handlers struct {
	OnConnected         func(game.ConnectedMessage)
	OnJoinedRoom        func(game.JoinedRoomMessage)
	OnError             func(game.ErrorMessage)
	OnGameState         func(game.RoomSnapshot)
	OnGameStart         func(game.RoomSnapshot)
	OnNewPlatforms      func(game.NewPlatformsMessage)
	OnCalibration       func(game.PlatformCalibrationMessage)
	OnPlayersState      func(game.PlayersStateMessage)
	OnPlatformTriggered func(game.PlatformTriggeredMessage)
	// OnClose fires once when the session ends, with the read error if any.
	OnClose func(error)
}

// Client is one persistent websocket session. All Send* methods are safe to
// call from any goroutine.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	playerID string
	roomID   string
	config   game.GameConfig
}

// Dial connects to a server's /connect endpoint and starts the session
// pumps. The playerID is known once the server's connected frame has been
// dispatched.
func Dial(ctx context.Context, url string, handlers Handlers) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:     conn,
		handlers: handlers,
		send:     make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// PlayerID is the server-assigned id, empty until the connected frame
// arrives.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// RoomID is the joined room's code, empty until joined_room arrives.
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Config is the server's world parameters from the connected frame.
func (c *Client) Config() game.GameConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

// outbound frames

type createRoomRequest struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
}

type joinRoomRequest struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId,omitempty"`
	PlayerName string `json:"playerName"`
}

type playerReadyRequest struct {
	Type  string `json:"type"`
	Ready bool   `json:"ready"`
}

type playerUpdateRequest struct {
	Type string            `json:"type"`
	Data game.PlayerUpdate `json:"data"`
}

type platformTriggerRequest struct {
	Type       string `json:"type"`
	PlatformID int    `json:"platformId"`
}

type restartRequest struct {
	Type string `json:"type"`
}

func (c *Client) CreateRoom(playerName string) {
	c.enqueue(createRoomRequest{Type: "create_room", PlayerName: playerName})
}

func (c *Client) JoinRoom(roomID, playerName string) {
	c.enqueue(joinRoomRequest{Type: "join_room", RoomID: roomID, PlayerName: playerName})
}

// QuickMatch joins any waiting room, creating one if none exists.
func (c *Client) QuickMatch(playerName string) {
	c.enqueue(joinRoomRequest{Type: "join_room", PlayerName: playerName})
}

func (c *Client) SetReady(ready bool) {
	c.enqueue(playerReadyRequest{Type: "player_ready", Ready: ready})
}

func (c *Client) SendPlayerUpdate(u game.PlayerUpdate) {
	c.enqueue(playerUpdateRequest{Type: "player_update", Data: u})
}

func (c *Client) SendPlatformTrigger(platformID int) {
	c.enqueue(platformTriggerRequest{Type: "platform_trigger", PlatformID: platformID})
}

func (c *Client) RequestRestart() {
	c.enqueue(restartRequest{Type: "restart_game"})
}

func (c *Client) enqueue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("Failed to marshal outbound message")
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (c *Client) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("Write failed, closing session")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readPump() {
	var readErr error
	defer func() {
		c.Close()
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(readErr)
		}
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				readErr = err
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	var env game.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.WithError(err).Warn("Dropping malformed server frame")
		return
	}

	switch env.Type {
	case "connected":
		var m game.ConnectedMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			log.WithError(err).Warn("Dropping malformed connected frame")
			return
		}
		c.mu.Lock()
		c.playerID = m.PlayerID
		c.config = m.GameConfig
		c.mu.Unlock()
		if c.handlers.OnConnected != nil {
			c.handlers.OnConnected(m)
		}

	case "joined_room":
		var m game.JoinedRoomMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			log.WithError(err).Warn("Dropping malformed joined_room frame")
			return
		}
		c.mu.Lock()
		c.roomID = m.RoomID
		c.mu.Unlock()
		if c.handlers.OnJoinedRoom != nil {
			c.handlers.OnJoinedRoom(m)
		}

	case "error":
		var m game.ErrorMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		if c.handlers.OnError != nil {
			c.handlers.OnError(m)
		}

	case "game_state", "game_start":
		var m game.RoomSnapshot
		if err := json.Unmarshal(raw, &m); err != nil {
			log.WithError(err).Warn("Dropping malformed snapshot frame")
			return
		}
		if env.Type == "game_start" {
			if c.handlers.OnGameStart != nil {
				c.handlers.OnGameStart(m)
			}
		} else if c.handlers.OnGameState != nil {
			c.handlers.OnGameState(m)
		}

	case "new_platforms":
		var m game.NewPlatformsMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		if c.handlers.OnNewPlatforms != nil {
			c.handlers.OnNewPlatforms(m)
		}

	case "platform_calibration":
		var m game.PlatformCalibrationMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		if c.handlers.OnCalibration != nil {
			c.handlers.OnCalibration(m)
		}

	case "players_state":
		var m game.PlayersStateMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		if c.handlers.OnPlayersState != nil {
			c.handlers.OnPlayersState(m)
		}

	case "platform_triggered":
		var m game.PlatformTriggeredMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		if c.handlers.OnPlatformTriggered != nil {
			c.handlers.OnPlatformTriggered(m)
		}

	default:
		log.WithField("type", env.Type).Debug("Ignoring unknown server frame")
	}
}
