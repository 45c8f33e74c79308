package game

// Wire protocol. Every frame is a self-describing JSON object with a "type"
// discriminator; timestamps are epoch milliseconds.

type Envelope struct {
	Type string `json:"type"`
}

// Client to server.

type CreateRoomMessage struct {
	PlayerName string `json:"playerName"`
}

type JoinRoomMessage struct {
	RoomID     string `json:"roomId,omitempty"`
	PlayerName string `json:"playerName"`
}

type PlayerReadyMessage struct {
	Ready bool `json:"ready"`
}

type PlayerUpdateMessage struct {
	Data PlayerUpdate `json:"data"`
}

// PlayerUpdate is the client-reported physics state. The server relays it
// as-is; it never simulates player movement itself.
type PlayerUpdate struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	VelocityX   float64 `json:"velocityX"`
	VelocityY   float64 `json:"velocityY"`
	Lives       int     `json:"lives"`
	Level       int     `json:"level"`
	Died        bool    `json:"died,omitempty"`
	DeathReason string  `json:"deathReason,omitempty"`
}

type PlatformTriggerMessage struct {
	PlatformID int `json:"platformId"`
}

// Server to client.

type GameConfig struct {
	Width               float64 `json:"width"`
	Height              float64 `json:"height"`
	PlatformScrollSpeed float64 `json:"platformScrollSpeed"`
	PlatformGap         float64 `json:"platformGap"`
}

type ConnectedMessage struct {
	Type       string     `json:"type"`
	PlayerID   string     `json:"playerId"`
	GameConfig GameConfig `json:"gameConfig"`
}

type JoinedRoomMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type PlayerInfo struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VelocityX float64 `json:"velocityX"`
	VelocityY float64 `json:"velocityY"`
	Alive     bool    `json:"alive"`
	Lives     int     `json:"lives"`
	Level     int     `json:"level"`
	Ready     bool    `json:"ready"`

	LastUpdate int64 `json:"-"`
}

type PlatformInfo struct {
	ID        int        `json:"id"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	InitialY  float64    `json:"initialY"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	Type      HazardType `json:"type"`
	Triggered bool       `json:"triggered"`
}

type WinnerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// RoomSnapshot doubles as the game_state and game_start payload; game_start
// additionally anchors clients with the full platform field and the
// gameStartTime used for derived platform positions.
type RoomSnapshot struct {
	Type                string         `json:"type"`
	RoomID              string         `json:"roomId"`
	State               RoomState      `json:"state"`
	Countdown           int            `json:"countdown"`
	CurrentLevel        int            `json:"currentLevel"`
	PlatformScrollSpeed float64        `json:"platformScrollSpeed"`
	GameStartTime       int64          `json:"gameStartTime"`
	ServerTime          int64          `json:"serverTime"`
	Players             []PlayerInfo   `json:"players"`
	Platforms           []PlatformInfo `json:"platforms"`
	Winner              *WinnerInfo    `json:"winner"`
}

type NewPlatformsMessage struct {
	Type       string         `json:"type"`
	ServerTime int64          `json:"serverTime"`
	Platforms  []PlatformInfo `json:"platforms"`
}

type PlatformCalibration struct {
	ID int     `json:"id"`
	Y  float64 `json:"y"`
}

type PlatformCalibrationMessage struct {
	Type          string                `json:"type"`
	ServerTime    int64                 `json:"serverTime"`
	GameStartTime int64                 `json:"gameStartTime"`
	Platforms     []PlatformCalibration `json:"platforms"`
}

type PlayersStateMessage struct {
	Type       string       `json:"type"`
	ServerTime int64        `json:"serverTime"`
	Players    []PlayerInfo `json:"players"`
}

type PlatformTriggeredMessage struct {
	Type       string `json:"type"`
	PlatformID int    `json:"platformId"`
	PlayerID   string `json:"playerId"`
}
