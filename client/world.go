package client

import (
	"math"
	"time"

	"mandown/game"
)

// Client-side physics tuning. Platform scroll and gap come from the server's
// gameConfig; everything that only affects the local player's feel lives here.
type Tuning struct {
	// Gravity is not applied here; it is the value the engine body must be
	// configured with so reported physics match other clients.
	Gravity float64

	MoveSpeed     float64
	MaxFallSpeed  float64
	BounceSpeed   float64
	FrictionDecay float64
	RestSpeed     float64

	// Death boundaries relative to the playfield.
	TopDeathY         float64
	BottomDeathMargin float64

	ReportInterval     time.Duration
	CalibrationMinDiff float64
	CalibrationLerp    float64
	RemoteLerp         float64
}

func DefaultTuning() Tuning {
	return Tuning{
		Gravity:       1800,
		MoveSpeed:     660,
		MaxFallSpeed:  1800,
		BounceSpeed:   -960,
		FrictionDecay: 0.8,
		RestSpeed:     10,

		TopDeathY:         -15,
		BottomDeathMargin: 150,

		ReportInterval:     50 * time.Millisecond,
		CalibrationMinDiff: 10,
		CalibrationLerp:    0.5,
		RemoteLerp:         0.3,
	}
}

// Input is the sampled control state for one frame.
type Input struct {
	Left  bool
	Right bool
}

// Reporter is the outbound half of the connection, from the world's point of
// view. *Client satisfies it.
type Reporter interface {
	SendPlayerUpdate(game.PlayerUpdate)
	SendPlatformTrigger(platformID int)
}

// Platform is the local mirror of a server platform. Y is advanced by local
// scrolling and nudged back by calibration frames.
type Platform struct {
	ID        int
	X         float64
	Y         float64
	InitialY  float64
	Width     float64
	Height    float64
	Type      game.HazardType
	Triggered bool
}

// RemotePlayer is another player's displayed state. X/Y converge on the last
// reported target a fraction per frame instead of snapping.
type RemotePlayer struct {
	ID               string
	Name             string
	X, Y             float64
	TargetX, TargetY float64
	Alive            bool
	Lives            int
	Level            int
}

// World runs the client's share of the simulation: it scrolls its own copy of
// the platform field, steers the engine body for the local player, smooths
// remote players toward their reported positions, and reports local state
// upstream. The server owns the platforms and trusts the movement, so
// calibration only ever nudges platforms, never the body.
//
// All methods must be called from the goroutine driving the game loop.
type World struct {
	playerID string
	cfg      game.GameConfig
	tuning   Tuning

	body      Body
	reporter  Reporter
	scheduler Scheduler
	clock     Clock

	platforms map[int]*Platform
	remotes   map[string]*RemotePlayer

	Lives int
	Level int
	Dead  bool

	gameStartTime int64
	// Local clock minus server clock, refreshed on every timestamped frame.
	serverOffset int64

	sinceReport time.Duration
	destroys    map[int]func()
}

func NewWorld(playerID string, cfg game.GameConfig, tuning Tuning, body Body, reporter Reporter, scheduler Scheduler) *World {
	return &World{
		playerID:  playerID,
		cfg:       cfg,
		tuning:    tuning,
		body:      body,
		reporter:  reporter,
		scheduler: scheduler,
		clock:     realClock{},
		platforms: make(map[int]*Platform),
		remotes:   make(map[string]*RemotePlayer),
		destroys:  make(map[int]func()),
		Lives:     game.MaxLives,
	}
}

// DerivedPlatformY is the authoritative platform position formula: spawn
// position plus scroll speed times elapsed seconds. Both ends compute it from
// the same start time instead of integrating, so they cannot drift apart.
func DerivedPlatformY(initialY, scrollSpeed float64, gameStartTime, atServerTime int64) float64 {
	return initialY + scrollSpeed*float64(atServerTime-gameStartTime)/1000
}

// ServerNow estimates the server's clock from the last timestamped frame.
func (w *World) ServerNow() int64 {
	return w.clock.Now().UnixMilli() - w.serverOffset
}

func (w *World) syncClock(serverTime int64) {
	if serverTime != 0 {
		w.serverOffset = w.clock.Now().UnixMilli() - serverTime
	}
}

// Start seeds the world from a game_start snapshot. Any state from a previous
// round is discarded first.
func (w *World) Start(s game.RoomSnapshot) {
	w.Reset()
	w.syncClock(s.ServerTime)
	w.gameStartTime = s.GameStartTime
	if s.PlatformScrollSpeed != 0 {
		w.cfg.PlatformScrollSpeed = s.PlatformScrollSpeed
	}
	for _, pi := range s.Platforms {
		w.platforms[pi.ID] = mirrorPlatform(pi)
	}
	for _, pi := range s.Players {
		if pi.ID == w.playerID {
			w.body.SetPosition(pi.X, pi.Y)
			w.body.SetVelocity(0, 0)
			w.Lives = pi.Lives
			w.Level = pi.Level
			w.Dead = !pi.Alive
			continue
		}
		w.remotes[pi.ID] = &RemotePlayer{
			ID: pi.ID, Name: pi.Name,
			X: pi.X, Y: pi.Y, TargetX: pi.X, TargetY: pi.Y,
			Alive: pi.Alive, Lives: pi.Lives, Level: pi.Level,
		}
	}
}

// Reset cancels pending fragile destructions and clears mirrored state.
func (w *World) Reset() {
	for _, cancel := range w.destroys {
		cancel()
	}
	w.destroys = make(map[int]func())
	w.platforms = make(map[int]*Platform)
	w.remotes = make(map[string]*RemotePlayer)
	w.Lives = game.MaxLives
	w.Level = 0
	w.Dead = false
	w.sinceReport = 0
}

func mirrorPlatform(pi game.PlatformInfo) *Platform {
	return &Platform{
		ID:        pi.ID,
		X:         pi.X,
		Y:         pi.Y,
		InitialY:  pi.InitialY,
		Width:     pi.Width,
		Height:    pi.Height,
		Type:      pi.Type,
		Triggered: pi.Triggered,
	}
}

// AddPlatforms mirrors a new_platforms frame. Spawn positions are placed at
// the derived Y for the frame's server time rather than the raw initialY, so
// late-arriving frames do not spawn platforms behind the scroll.
func (w *World) AddPlatforms(m game.NewPlatformsMessage) {
	w.syncClock(m.ServerTime)
	for _, pi := range m.Platforms {
		p := mirrorPlatform(pi)
		if w.gameStartTime != 0 && m.ServerTime != 0 {
			p.Y = DerivedPlatformY(p.InitialY, w.cfg.PlatformScrollSpeed, w.gameStartTime, m.ServerTime)
		}
		w.platforms[p.ID] = p
	}
}

// Calibrate reconciles local platform positions against a calibration frame.
// Small disagreements are left alone; larger ones are blended halfway rather
// than snapped. Platforms the server no longer lists are removed.
func (w *World) Calibrate(m game.PlatformCalibrationMessage) {
	w.syncClock(m.ServerTime)
	if m.GameStartTime != 0 {
		w.gameStartTime = m.GameStartTime
	}
	listed := make(map[int]bool, len(m.Platforms))
	for _, c := range m.Platforms {
		listed[c.ID] = true
		p, ok := w.platforms[c.ID]
		if !ok {
			continue
		}
		if math.Abs(p.Y-c.Y) > w.tuning.CalibrationMinDiff {
			p.Y = lerp(p.Y, c.Y, w.tuning.CalibrationLerp)
		}
	}
	for id := range w.platforms {
		if !listed[id] {
			w.removePlatform(id)
		}
	}
}

// ApplyPlayersState updates remote player targets from a players_state frame
// and accepts the server's verdict on the local player's aliveness.
func (w *World) ApplyPlayersState(m game.PlayersStateMessage) {
	w.syncClock(m.ServerTime)
	listed := make(map[string]bool, len(m.Players))
	for _, pi := range m.Players {
		listed[pi.ID] = true
		if pi.ID == w.playerID {
			if !pi.Alive {
				w.Dead = true
			}
			continue
		}
		rp, ok := w.remotes[pi.ID]
		if !ok {
			rp = &RemotePlayer{ID: pi.ID, X: pi.X, Y: pi.Y}
			w.remotes[pi.ID] = rp
		}
		rp.Name = pi.Name
		rp.TargetX, rp.TargetY = pi.X, pi.Y
		rp.Alive = pi.Alive
		rp.Lives = pi.Lives
		rp.Level = pi.Level
	}
	for id := range w.remotes {
		if !listed[id] {
			delete(w.remotes, id)
		}
	}
}

// ApplyTrigger mirrors a platform_triggered frame for another player's hazard:
// fragile platforms start their destruction timer so all clients see them
// vanish together. Triggers echoed back for the local player are already
// applied and only marked.
func (w *World) ApplyTrigger(m game.PlatformTriggeredMessage) {
	p, ok := w.platforms[m.PlatformID]
	if !ok || p.Triggered {
		return
	}
	p.Triggered = true
	if p.Type == game.HazardFragile {
		w.scheduleDestroy(p.ID)
	}
}

// ContactPlatform is the engine's collision callback for the local player
// touching a platform. Only a landing counts: side and bottom contacts are
// ignored. Landing applies the hazard effect and advances the level counter;
// hazard side effects are reported upstream exactly once.
func (w *World) ContactPlatform(platformID int) {
	if w.Dead || !w.body.TouchingDown() {
		return
	}
	p, ok := w.platforms[platformID]
	if !ok {
		return
	}
	// Two platform ids per generated row, first row is level 1.
	if lvl := platformID/2 + 1; lvl > w.Level {
		w.Level = lvl
	}
	switch p.Type {
	case game.HazardBounce:
		vx, _ := w.body.Velocity()
		w.body.SetVelocity(vx, w.tuning.BounceSpeed)
	case game.HazardFragile:
		if !p.Triggered {
			p.Triggered = true
			w.reporter.SendPlatformTrigger(p.ID)
			w.scheduleDestroy(p.ID)
		}
	case game.HazardPoison:
		if !p.Triggered {
			p.Triggered = true
			w.Lives--
			w.reporter.SendPlatformTrigger(p.ID)
		}
	}
}

func (w *World) scheduleDestroy(platformID int) {
	if _, pending := w.destroys[platformID]; pending {
		return
	}
	w.destroys[platformID] = w.scheduler.After(game.FragileDestroyDelay, func() {
		delete(w.destroys, platformID)
		w.removePlatform(platformID)
	})
}

func (w *World) removePlatform(platformID int) {
	if cancel, ok := w.destroys[platformID]; ok {
		cancel()
		delete(w.destroys, platformID)
	}
	delete(w.platforms, platformID)
}

// Step advances the world by one frame: scroll the platform field, steer the
// body from input, smooth remote players, and report local state on the
// reporting cadence.
func (w *World) Step(delta time.Duration, in Input) {
	dt := delta.Seconds()
	scroll := w.cfg.PlatformScrollSpeed * dt

	for id, p := range w.platforms {
		p.Y += scroll
		if p.Y < game.TopRemovalY {
			w.removePlatform(id)
		}
	}

	if !w.Dead {
		// A grounded body rides its platform upward; the engine only sees the
		// platform as static geometry.
		if w.body.TouchingDown() {
			x, y := w.body.Position()
			w.body.SetPosition(x, y+scroll)
		}

		vx, vy := w.body.Velocity()
		switch {
		case in.Left && !in.Right:
			vx = -w.tuning.MoveSpeed
		case in.Right && !in.Left:
			vx = w.tuning.MoveSpeed
		default:
			vx *= w.tuning.FrictionDecay
			if math.Abs(vx) < w.tuning.RestSpeed {
				vx = 0
			}
		}
		if vy > w.tuning.MaxFallSpeed {
			vy = w.tuning.MaxFallSpeed
		}
		w.body.SetVelocity(vx, vy)

		x, y := w.body.Position()
		if x < 0 {
			w.body.SetPosition(0, y)
		} else if x > w.cfg.Width {
			w.body.SetPosition(w.cfg.Width, y)
		}

		w.checkDeath()
	}

	for _, rp := range w.remotes {
		rp.X = lerp(rp.X, rp.TargetX, w.tuning.RemoteLerp)
		rp.Y = lerp(rp.Y, rp.TargetY, w.tuning.RemoteLerp)
	}

	w.sinceReport += delta
	if !w.Dead && w.sinceReport >= w.tuning.ReportInterval {
		w.sinceReport = 0
		w.report(false, "")
	}
}

func (w *World) checkDeath() {
	_, y := w.body.Position()
	switch {
	case y < w.tuning.TopDeathY:
		w.die("pushed off the top")
	case y > w.cfg.Height+w.tuning.BottomDeathMargin:
		w.die("fell off the screen")
	case w.Lives <= 0:
		w.die("out of lives")
	}
}

// die reports the death exactly once; the server flips the player to dead and
// stops accepting further updates for them.
func (w *World) die(reason string) {
	if w.Dead {
		return
	}
	w.Dead = true
	w.body.SetVelocity(0, 0)
	w.report(true, reason)
}

func (w *World) report(died bool, reason string) {
	x, y := w.body.Position()
	vx, vy := w.body.Velocity()
	w.reporter.SendPlayerUpdate(game.PlayerUpdate{
		X:           x,
		Y:           y,
		VelocityX:   vx,
		VelocityY:   vy,
		Lives:       w.Lives,
		Level:       w.Level,
		Died:        died,
		DeathReason: reason,
	})
}

// Platforms returns the current platform mirrors for rendering.
func (w *World) Platforms() map[int]*Platform { return w.platforms }

// Remotes returns the smoothed remote players for rendering.
func (w *World) Remotes() map[string]*RemotePlayer { return w.remotes }

func lerp(from, to, t float64) float64 { return from + (to-from)*t }
