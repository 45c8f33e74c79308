package game

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"mandown/nats"

	log "github.com/sirupsen/logrus"
)

type RoomState string

const (
	RoomStateWaiting   RoomState = "waiting"
	RoomStateCountdown RoomState = "countdown"
	RoomStatePlaying   RoomState = "playing"
	RoomStateFinished  RoomState = "finished"
)

// Rooms with no players are reaped after this long. Covers rooms created
// over HTTP that nobody ever joined and shells restored from backup.
const idleTimeout = 10 * time.Minute

type joinRequest struct {
	player *Player
	name   string
	reply  chan error
}

type playerMessage struct {
	player  *Player
	msgType string
	raw     []byte
}

// Room is one isolated game session. All room state is owned by the Run
// goroutine: joins, leaves, client messages and timer ticks are serialized
// through its select loop, so no field below needs a lock. The server is
// authoritative for the world (platforms, timing, win condition) but relays
// player physics as clients report it.
type Room struct {
	ID  string
	hub *Hub

	maxPlayers int
	debugSolo  bool
	tuning     Tuning

	players map[*Player]*PlayerInfo

	gen           *Generator
	platforms     []*Platform
	pending       []*Platform
	lastPlatformY float64

	state        RoomState
	countdown    int
	currentLevel int
	winner       *PlayerInfo
	gameStart    time.Time
	tickCount    int

	join  chan joinRequest
	leave chan *Player
	inbox chan playerMessage
	quit  chan struct{}
	// Closed at teardown. Joiners select on it so a request sent to a room
	// that is going away is answered instead of sitting in the buffer.
	done chan struct{}

	gameTicker      *time.Ticker
	countdownTicker *time.Ticker
	backupTicker    *time.Ticker
	replayTicker    *time.Ticker
	idleTimer       *time.Timer

	// Mirrors readable by the hub without entering the loop.
	stateMirror atomic.Value // RoomState
	playerCount atomic.Int32
}

func newRoom(id string, hub *Hub, tuning Tuning, maxPlayers int, debugSolo bool) *Room {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	r := &Room{
		ID:           id,
		hub:          hub,
		maxPlayers:   maxPlayers,
		debugSolo:    debugSolo,
		tuning:       tuning,
		players:      make(map[*Player]*PlayerInfo),
		gen:          NewGenerator(GameWidth, tuning, rng),
		state:        RoomStateWaiting,
		countdown:    CountdownSeconds,
		currentLevel: 1,
		join:         make(chan joinRequest, 8),
		leave:        make(chan *Player, 16),
		inbox:        make(chan playerMessage, 256),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	r.stateMirror.Store(RoomStateWaiting)

	// Tickers are created parked so state transitions can arm them whether
	// or not the loop is running yet (tests drive transitions directly).
	r.gameTicker = time.NewTicker(tickInterval)
	r.gameTicker.Stop()
	r.countdownTicker = time.NewTicker(time.Second)
	r.countdownTicker.Stop()
	r.backupTicker = time.NewTicker(5 * time.Second)
	r.backupTicker.Stop()
	r.replayTicker = time.NewTicker(500 * time.Millisecond)
	r.replayTicker.Stop()

	return r
}

func (r *Room) State() RoomState {
	return r.stateMirror.Load().(RoomState)
}

func (r *Room) PlayerCount() int {
	return int(r.playerCount.Load())
}

func (r *Room) setState(s RoomState) {
	r.state = s
	r.stateMirror.Store(s)
}

func (r *Room) Run() {
	defer func() {
		r.gameTicker.Stop()
		r.countdownTicker.Stop()
		r.backupTicker.Stop()
		r.replayTicker.Stop()
		r.idleTimer.Stop()
	}()

	r.backupTicker.Reset(5 * time.Second)
	r.replayTicker.Reset(500 * time.Millisecond)
	r.idleTimer = time.NewTimer(idleTimeout)

	for {
		select {
		case req := <-r.join:
			req.reply <- r.handleJoin(req.player, req.name)
		case p := <-r.leave:
			r.handleLeave(p)
			if len(r.players) == 0 {
				r.teardown()
				return
			}
		case msg := <-r.inbox:
			r.handleMessage(msg)
		case <-r.countdownTicker.C:
			r.tickCountdown()
		case t := <-r.gameTicker.C:
			r.tick(t)
		case <-r.backupTicker.C:
			if r.state == RoomStatePlaying {
				SaveToBackup(RoomBackup{ID: r.ID, CurrentLevel: r.currentLevel})
			}
		case <-r.replayTicker.C:
			if r.state == RoomStatePlaying {
				r.publishReplay()
			}
		case <-r.idleTimer.C:
			if len(r.players) == 0 {
				log.WithField("room", r.ID).Info("Reaping idle room")
				r.teardown()
				return
			}
		case <-r.quit:
			r.teardown()
			return
		}
	}
}

// teardown cancels every pending timer (they die with the loop goroutine),
// answers any queued joins and deregisters the room. done is closed before
// the drain: a join that slips into the buffer during or after teardown is
// unblocked on its own side by the closed channel.
func (r *Room) teardown() {
	close(r.done)

	for {
		select {
		case req := <-r.join:
			req.reply <- errors.New("Room not found")
			continue
		default:
		}
		break
	}

	for p := range r.players {
		close(p.send)
		delete(r.players, p)
	}
	r.playerCount.Store(0)

	DeleteBackup(r.ID)
	r.hub.removeRoom(r.ID)
	nats.Publish("mandown.room_deleted", []byte(r.ID))
	log.WithField("room", r.ID).Info("Room torn down")
}

func (r *Room) handleJoin(p *Player, name string) error {
	if r.state != RoomStateWaiting {
		return errors.New("Game already started")
	}
	if len(r.players) >= r.maxPlayers {
		return errors.New("Room is full")
	}

	if name == "" {
		name = "Player-" + p.ID[:4]
	}
	p.Name = name

	r.players[p] = &PlayerInfo{
		ID:         p.ID,
		Name:       name,
		X:          GameWidth / 2,
		Y:          180,
		Alive:      true,
		Lives:      MaxLives,
		Level:      1,
		LastUpdate: time.Now().UnixMilli(),
	}
	r.playerCount.Store(int32(len(r.players)))
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}

	p.enqueueJSON(JoinedRoomMessage{Type: "joined_room", RoomID: r.ID, PlayerID: p.ID})
	r.broadcastSnapshot("game_state")

	log.WithField("room", r.ID).WithField("player", p.ID).Info("Player joined, ", len(r.players), " in room")
	return nil
}

func (r *Room) handleLeave(p *Player) {
	if _, ok := r.players[p]; !ok {
		return
	}

	delete(r.players, p)
	close(p.send)
	r.playerCount.Store(int32(len(r.players)))
	log.WithField("room", r.ID).WithField("player", p.ID).Info("Player left, ", len(r.players), " in room")

	if len(r.players) == 0 {
		return
	}

	// A departure mid-game can end it right away. No waiting for the next
	// tick's natural win check.
	if r.state == RoomStatePlaying {
		alive, last := r.aliveCount()
		if alive <= 1 {
			r.endGame(last)
			return
		}
	}
	r.broadcastSnapshot("game_state")
}

func (r *Room) handleMessage(msg playerMessage) {
	info, ok := r.players[msg.player]
	if !ok {
		return
	}

	switch msg.msgType {
	case "player_ready":
		if r.state != RoomStateWaiting {
			return
		}
		var m PlayerReadyMessage
		if err := json.Unmarshal(msg.raw, &m); err != nil {
			log.WithError(err).Warn("Dropping malformed player_ready")
			return
		}
		info.Ready = m.Ready
		if r.allPlayersReady() {
			r.startCountdown()
		}
		r.broadcastSnapshot("game_state")

	case "player_update":
		if r.state != RoomStatePlaying {
			return
		}
		var m PlayerUpdateMessage
		if err := json.Unmarshal(msg.raw, &m); err != nil {
			log.WithError(err).Warn("Dropping malformed player_update")
			return
		}
		r.handlePlayerUpdate(info, m.Data)

	case "platform_trigger":
		if r.state != RoomStatePlaying {
			return
		}
		var m PlatformTriggerMessage
		if err := json.Unmarshal(msg.raw, &m); err != nil {
			log.WithError(err).Warn("Dropping malformed platform_trigger")
			return
		}
		r.handlePlatformTrigger(m.PlatformID, info)

	case "restart_game":
		if r.state != RoomStateFinished {
			return
		}
		r.restart()

	default:
		log.WithField("type", msg.msgType).Debug("Ignoring unknown message type")
	}
}

func (r *Room) allPlayersReady() bool {
	if !r.debugSolo && len(r.players) < 2 {
		return false
	}
	for _, info := range r.players {
		if !info.Ready {
			return false
		}
	}
	return true
}

// Once started the countdown runs to completion; there is no way back to
// WAITING.
func (r *Room) startCountdown() {
	r.setState(RoomStateCountdown)
	r.countdown = CountdownSeconds
	r.countdownTicker.Reset(time.Second)
	log.WithField("room", r.ID).Info("Countdown started")
}

func (r *Room) tickCountdown() {
	if r.state != RoomStateCountdown {
		return
	}
	r.countdown--
	if r.countdown <= 0 {
		r.countdownTicker.Stop()
		r.startGame()
		return
	}
	r.broadcastSnapshot("game_state")
}

func (r *Room) startGame() {
	r.setState(RoomStatePlaying)
	r.currentLevel = 1
	r.winner = nil
	r.gameStart = time.Now()
	r.tickCount = 0
	r.initializePlatforms()

	// Spread start positions so players don't stack on the same spot.
	offsetX := 0.0
	for _, info := range r.players {
		info.X = GameWidth/2 + offsetX
		info.Y = 180
		info.VelocityX = 0
		info.VelocityY = 0
		info.Alive = true
		info.Lives = MaxLives
		info.Level = 1
		info.LastUpdate = time.Now().UnixMilli()

		offsetX += 99
		if offsetX > 195 {
			offsetX = -195
		}
	}

	r.gameTicker.Reset(tickInterval)
	r.broadcastSnapshot("game_start")
	nats.Publish("mandown.game_started", []byte(r.ID))
	log.WithField("room", r.ID).Info("Game started with ", len(r.platforms), " platforms")
}

// initializePlatforms pre-generates rows covering PreloadScreens screen
// heights past the start line. The pending queue is cleared: the full field
// travels in the game_start snapshot instead.
func (r *Room) initializePlatforms() {
	r.platforms = nil
	r.pending = nil

	maxPreloadY := GameHeight * PreloadScreens
	y := float64(InitialPlatformStartY)
	for y < maxPreloadY {
		r.platforms = append(r.platforms, r.gen.Row(y)...)
		y += r.tuning.Gap
	}
	r.lastPlatformY = y - r.tuning.Gap
}

func (r *Room) createRow(y float64) {
	row := r.gen.Row(y)
	r.platforms = append(r.platforms, row...)
	r.pending = append(r.pending, row...)
}

// tick advances the world one step. Order matters: positions and retirement
// first, then frontier extension, then the win check, then broadcasts. A
// row generated this tick can never retroactively change this tick's
// verdict.
func (r *Room) tick(now time.Time) {
	if r.state != RoomStatePlaying {
		return
	}

	elapsed := now.Sub(r.gameStart).Seconds()
	scrollOffset := r.tuning.ScrollSpeed * elapsed

	kept := r.platforms[:0]
	for _, p := range r.platforms {
		if p.Triggered && !p.Destroyed && p.Type == HazardFragile &&
			now.Sub(p.triggeredAt) >= FragileDestroyDelay {
			p.Destroyed = true
		}
		// Derived, never integrated: peers given the same anchor agree.
		p.Y = p.InitialY + scrollOffset
		if p.Y < TopRemovalY || p.Destroyed {
			continue
		}
		kept = append(kept, p)
	}
	r.platforms = kept

	// Keep PreloadScreens worth of rows generated beyond the scrolled view.
	targetLastY := GameHeight*PreloadScreens - scrollOffset
	for r.lastPlatformY < targetLastY {
		newY := r.lastPlatformY + r.tuning.Gap
		r.createRow(newY)
		r.lastPlatformY = newY
		r.currentLevel++
	}

	alive, last := r.aliveCount()
	if alive <= 1 && len(r.players) > 1 {
		r.endGame(last)
		return
	} else if alive == 0 {
		r.endGame(nil)
		return
	}

	r.tickCount++

	if len(r.pending) > 0 {
		r.broadcast(NewPlatformsMessage{
			Type:       "new_platforms",
			ServerTime: now.UnixMilli(),
			Platforms:  platformInfos(r.pending),
		})
		r.pending = r.pending[:0]
	}

	if r.tickCount%calibrationTicks == 0 {
		r.broadcast(r.calibrationMessage(now))
	}

	r.broadcast(PlayersStateMessage{
		Type:       "players_state",
		ServerTime: now.UnixMilli(),
		Players:    r.playerList(),
	})
}

func (r *Room) aliveCount() (int, *PlayerInfo) {
	count := 0
	var last *PlayerInfo
	for _, info := range r.players {
		if info.Alive {
			count++
			last = info
		}
	}
	return count, last
}

// handlePlayerUpdate accepts client-reported physics. The trust boundary is
// deliberate: the 2D engine client-side already owns player movement, the
// server only refuses resurrection and level regression.
func (r *Room) handlePlayerUpdate(info *PlayerInfo, data PlayerUpdate) {
	if !info.Alive {
		return
	}

	info.X = data.X
	info.Y = data.Y
	info.VelocityX = data.VelocityX
	info.VelocityY = data.VelocityY
	info.Lives = data.Lives
	if data.Level > info.Level {
		info.Level = data.Level
	}
	info.LastUpdate = time.Now().UnixMilli()

	if data.Died {
		info.Alive = false
		reason := data.DeathReason
		if reason == "" {
			reason = "unknown"
		}
		log.WithField("room", r.ID).WithField("player", info.ID).Info("Player died: ", reason)
		nats.Publish("mandown.died", []byte(info.ID))
	}
}

// handlePlatformTrigger applies a one-shot hazard effect. The triggered
// flag gates it: however many players or retries reference the platform,
// the effect lands at most once.
func (r *Room) handlePlatformTrigger(platformID int, info *PlayerInfo) {
	var platform *Platform
	for _, p := range r.platforms {
		if p.ID == platformID {
			platform = p
			break
		}
	}
	if platform == nil || platform.Triggered {
		return
	}

	platform.Triggered = true
	platform.triggeredAt = time.Now()

	if platform.Type == HazardPoison && info.Alive {
		info.Lives--
		if info.Lives <= 0 {
			info.Alive = false
			log.WithField("room", r.ID).WithField("player", info.ID).Info("Player died: out of lives")
			nats.Publish("mandown.died", []byte(info.ID))
		}
	}

	r.broadcast(PlatformTriggeredMessage{
		Type:       "platform_triggered",
		PlatformID: platformID,
		PlayerID:   info.ID,
	})
}

func (r *Room) endGame(winner *PlayerInfo) {
	r.setState(RoomStateFinished)
	r.winner = winner
	r.gameTicker.Stop()

	name := "none"
	if winner != nil {
		name = winner.Name
		nats.Publish("mandown.finished", []byte(winner.ID))
	} else {
		nats.Publish("mandown.finished", []byte(""))
	}
	log.WithField("room", r.ID).Info("Game over, winner: ", name)

	r.broadcastSnapshot("game_state")
}

func (r *Room) restart() {
	r.setState(RoomStateWaiting)
	r.winner = nil
	r.currentLevel = 1
	for _, info := range r.players {
		info.Ready = false
	}
	log.WithField("room", r.ID).Info("Room reset for a new round")
	r.broadcastSnapshot("game_state")
}

func (r *Room) playerList() []PlayerInfo {
	players := make([]PlayerInfo, 0, len(r.players))
	for _, info := range r.players {
		players = append(players, *info)
	}
	return players
}

func platformInfos(platforms []*Platform) []PlatformInfo {
	infos := make([]PlatformInfo, 0, len(platforms))
	for _, p := range platforms {
		if p.Destroyed {
			continue
		}
		infos = append(infos, p.info())
	}
	return infos
}

func (r *Room) snapshot(msgType string, now time.Time) RoomSnapshot {
	var winner *WinnerInfo
	if r.winner != nil {
		winner = &WinnerInfo{ID: r.winner.ID, Name: r.winner.Name, Level: r.winner.Level}
	}

	var gameStart int64
	if !r.gameStart.IsZero() {
		gameStart = r.gameStart.UnixMilli()
	}

	return RoomSnapshot{
		Type:                msgType,
		RoomID:              r.ID,
		State:               r.state,
		Countdown:           r.countdown,
		CurrentLevel:        r.currentLevel,
		PlatformScrollSpeed: r.tuning.ScrollSpeed,
		GameStartTime:       gameStart,
		ServerTime:          now.UnixMilli(),
		Players:             r.playerList(),
		Platforms:           platformInfos(r.platforms),
		Winner:              winner,
	}
}

func (r *Room) calibrationMessage(now time.Time) PlatformCalibrationMessage {
	calib := make([]PlatformCalibration, 0, len(r.platforms))
	for _, p := range r.platforms {
		if p.Destroyed {
			continue
		}
		calib = append(calib, PlatformCalibration{ID: p.ID, Y: p.Y})
	}
	return PlatformCalibrationMessage{
		Type:          "platform_calibration",
		ServerTime:    now.UnixMilli(),
		GameStartTime: r.gameStart.UnixMilli(),
		Platforms:     calib,
	}
}

func (r *Room) broadcastSnapshot(msgType string) {
	r.broadcast(r.snapshot(msgType, time.Now()))
}

func (r *Room) broadcast(message interface{}) {
	bytes, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).Error("Error marshalling message")
		return
	}

	for p := range r.players {
		p.Enqueue(bytes)
	}
}

func (r *Room) publishReplay() {
	bytes, err := json.Marshal(r.snapshot("game_state", time.Now()))
	if err != nil {
		log.WithError(err).Error("Failed to marshal room state")
		return
	}
	nats.Publish("room_state."+r.ID, bytes)
}
