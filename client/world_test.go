package client

import (
	"math"
	"testing"
	"time"

	"mandown/game"
)

type fakeBody struct {
	x, y, vx, vy float64
	grounded     bool
}

func (b *fakeBody) Position() (float64, float64) { return b.x, b.y }
func (b *fakeBody) SetPosition(x, y float64)     { b.x, b.y = x, y }
func (b *fakeBody) Velocity() (float64, float64) { return b.vx, b.vy }
func (b *fakeBody) SetVelocity(vx, vy float64)   { b.vx, b.vy = vx, vy }
func (b *fakeBody) TouchingDown() bool           { return b.grounded }

type fakeReporter struct {
	updates  []game.PlayerUpdate
	triggers []int
}

func (r *fakeReporter) SendPlayerUpdate(u game.PlayerUpdate) { r.updates = append(r.updates, u) }
func (r *fakeReporter) SendPlatformTrigger(id int)           { r.triggers = append(r.triggers, id) }

type scheduled struct {
	due time.Duration
	fn  func()
}

// fakeScheduler runs callbacks when the test advances it, on the test
// goroutine, matching the Scheduler contract.
type fakeScheduler struct {
	now     time.Duration
	pending map[int]*scheduled
	nextID  int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{pending: make(map[int]*scheduled)}
}

func (s *fakeScheduler) After(d time.Duration, fn func()) func() {
	id := s.nextID
	s.nextID++
	s.pending[id] = &scheduled{due: s.now + d, fn: fn}
	return func() { delete(s.pending, id) }
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.now += d
	for id, job := range s.pending {
		if job.due <= s.now {
			delete(s.pending, id)
			job.fn()
		}
	}
}

func testConfig() game.GameConfig {
	return game.GameConfig{
		Width:               game.GameWidth,
		Height:              game.GameHeight,
		PlatformScrollSpeed: -180,
		PlatformGap:         300,
	}
}

func testWorld(t *testing.T) (*World, *fakeBody, *fakeReporter, *fakeScheduler) {
	t.Helper()
	body := &fakeBody{x: game.GameWidth / 2, y: 180}
	rep := &fakeReporter{}
	sched := newFakeScheduler()
	w := NewWorld("me", testConfig(), DefaultTuning(), body, rep, sched)
	return w, body, rep, sched
}

func addPlat(w *World, id int, y float64, typ game.HazardType) *Platform {
	p := &Platform{ID: id, X: 480, Y: y, InitialY: y, Width: 300, Height: 21, Type: typ}
	w.platforms[id] = p
	return p
}

func TestCalibrateBlendsOnlyPastThreshold(t *testing.T) {
	w, _, _, _ := testWorld(t)
	small := addPlat(w, 1, 500, game.HazardNormal)
	large := addPlat(w, 2, 800, game.HazardNormal)

	w.Calibrate(game.PlatformCalibrationMessage{
		Platforms: []game.PlatformCalibration{
			{ID: 1, Y: 508}, // within tolerance
			{ID: 2, Y: 840}, // 40px drift
		},
	})

	if small.Y != 500 {
		t.Fatalf("platform 1 y=%.1f, small drift must be left alone", small.Y)
	}
	if large.Y != 820 {
		t.Fatalf("platform 2 y=%.1f, want halfway blend to 820", large.Y)
	}
}

func TestCalibrateRemovesUnlistedPlatforms(t *testing.T) {
	w, _, _, _ := testWorld(t)
	addPlat(w, 1, 500, game.HazardNormal)
	addPlat(w, 2, 800, game.HazardNormal)

	w.Calibrate(game.PlatformCalibrationMessage{
		Platforms: []game.PlatformCalibration{{ID: 2, Y: 800}},
	})

	if _, ok := w.platforms[1]; ok {
		t.Fatal("platform absent from calibration frame was kept")
	}
	if _, ok := w.platforms[2]; !ok {
		t.Fatal("listed platform was removed")
	}
}

// Local per-frame integration must land on the same positions the server
// derives from elapsed time, or calibration would fight the scroll.
func TestStepScrollMatchesDerivedFormula(t *testing.T) {
	w, _, _, _ := testWorld(t)
	w.gameStartTime = 1_000_000
	p := addPlat(w, 1, 900, game.HazardNormal)

	step := 50 * time.Millisecond
	for i := 0; i < 40; i++ { // 2 seconds
		w.Step(step, Input{})
	}

	want := DerivedPlatformY(900, -180, 1_000_000, 1_002_000)
	if math.Abs(p.Y-want) > 0.001 {
		t.Fatalf("integrated y=%.4f, derived y=%.4f", p.Y, want)
	}
}

func TestStepRetiresPlatformsAboveRemovalLine(t *testing.T) {
	w, _, _, _ := testWorld(t)
	addPlat(w, 1, game.TopRemovalY+1, game.HazardNormal)

	w.Step(time.Second, Input{})

	if _, ok := w.platforms[1]; ok {
		t.Fatal("platform above the removal line was kept")
	}
}

func TestGroundedBodyRidesScroll(t *testing.T) {
	w, body, _, _ := testWorld(t)
	body.grounded = true
	body.y = 600

	w.Step(100*time.Millisecond, Input{})

	if math.Abs(body.y-582) > 0.001 {
		t.Fatalf("grounded body y=%.3f, want carried to 582", body.y)
	}
}

func TestInputSetsVelocityAndFrictionStops(t *testing.T) {
	w, body, _, _ := testWorld(t)
	tun := DefaultTuning()

	w.Step(16*time.Millisecond, Input{Right: true})
	if body.vx != tun.MoveSpeed {
		t.Fatalf("vx=%.1f holding right, want %.1f", body.vx, tun.MoveSpeed)
	}

	w.Step(16*time.Millisecond, Input{Left: true})
	if body.vx != -tun.MoveSpeed {
		t.Fatalf("vx=%.1f holding left, want %.1f", body.vx, -tun.MoveSpeed)
	}

	for i := 0; i < 40 && body.vx != 0; i++ {
		w.Step(16*time.Millisecond, Input{})
	}
	if body.vx != 0 {
		t.Fatalf("vx=%.3f after coasting, friction must bring it to rest", body.vx)
	}
}

func TestFallSpeedClamped(t *testing.T) {
	w, body, _, _ := testWorld(t)
	body.vy = 5000

	w.Step(16*time.Millisecond, Input{})

	if body.vy != DefaultTuning().MaxFallSpeed {
		t.Fatalf("vy=%.1f, want clamped to %.1f", body.vy, DefaultTuning().MaxFallSpeed)
	}
}

func TestBodyKeptInHorizontalBounds(t *testing.T) {
	w, body, _, _ := testWorld(t)
	body.x = -30

	w.Step(16*time.Millisecond, Input{})
	if body.x != 0 {
		t.Fatalf("x=%.1f, want clamped to 0", body.x)
	}

	body.x = game.GameWidth + 30
	w.Step(16*time.Millisecond, Input{})
	if body.x != game.GameWidth {
		t.Fatalf("x=%.1f, want clamped to %d", body.x, game.GameWidth)
	}
}

func TestRemotePlayersConvergeOnTargets(t *testing.T) {
	w, _, _, _ := testWorld(t)
	w.ApplyPlayersState(game.PlayersStateMessage{
		Players: []game.PlayerInfo{
			{ID: "me", Alive: true},
			{ID: "other", X: 100, Y: 100, Alive: true},
		},
	})
	w.ApplyPlayersState(game.PlayersStateMessage{
		Players: []game.PlayerInfo{
			{ID: "me", Alive: true},
			{ID: "other", X: 400, Y: 700, Alive: true},
		},
	})

	rp := w.remotes["other"]
	lastDist := math.Hypot(rp.TargetX-rp.X, rp.TargetY-rp.Y)
	for i := 0; i < 30; i++ {
		w.Step(16*time.Millisecond, Input{})
		dist := math.Hypot(rp.TargetX-rp.X, rp.TargetY-rp.Y)
		if dist > lastDist {
			t.Fatalf("step %d moved away from target: %.3f > %.3f", i, dist, lastDist)
		}
		lastDist = dist
	}
	if lastDist > 1 {
		t.Fatalf("remote still %.1f px from target after 30 frames", lastDist)
	}
}

func TestRemotePlayersPrunedWhenAbsent(t *testing.T) {
	w, _, _, _ := testWorld(t)
	w.ApplyPlayersState(game.PlayersStateMessage{
		Players: []game.PlayerInfo{{ID: "me", Alive: true}, {ID: "gone", Alive: true}},
	})
	w.ApplyPlayersState(game.PlayersStateMessage{
		Players: []game.PlayerInfo{{ID: "me", Alive: true}},
	})

	if _, ok := w.remotes["gone"]; ok {
		t.Fatal("remote player absent from frame was kept")
	}
}

func TestServerDeathVerdictAccepted(t *testing.T) {
	w, _, _, _ := testWorld(t)
	w.ApplyPlayersState(game.PlayersStateMessage{
		Players: []game.PlayerInfo{{ID: "me", Alive: false}},
	})
	if !w.Dead {
		t.Fatal("server reported local player dead, world still alive")
	}
}

func TestFallDeathReportedOnce(t *testing.T) {
	w, body, rep, _ := testWorld(t)
	body.y = game.GameHeight + 200

	for i := 0; i < 10; i++ {
		w.Step(50*time.Millisecond, Input{})
	}

	var deaths int
	for _, u := range rep.updates {
		if u.Died {
			deaths++
			if u.DeathReason != "fell off the screen" {
				t.Fatalf("death reason %q, want fell off the screen", u.DeathReason)
			}
		}
	}
	if deaths != 1 {
		t.Fatalf("reported death %d times, want exactly once", deaths)
	}
	if !w.Dead {
		t.Fatal("world not marked dead")
	}
	// Dead players stop reporting entirely.
	if len(rep.updates) != deaths {
		t.Fatalf("%d updates sent, dead player must go silent", len(rep.updates))
	}
}

func TestTopDeathReason(t *testing.T) {
	w, body, rep, _ := testWorld(t)
	body.y = -30

	w.Step(16*time.Millisecond, Input{})

	if len(rep.updates) != 1 || !rep.updates[0].Died || rep.updates[0].DeathReason != "pushed off the top" {
		t.Fatalf("updates %+v, want one death with pushed off the top", rep.updates)
	}
}

func TestReportCadence(t *testing.T) {
	w, _, rep, _ := testWorld(t)

	for i := 0; i < 8; i++ {
		w.Step(25*time.Millisecond, Input{})
	}

	if len(rep.updates) != 4 {
		t.Fatalf("%d reports over 200ms, want one per 50ms", len(rep.updates))
	}
}

func TestBounceContact(t *testing.T) {
	w, body, _, _ := testWorld(t)
	addPlat(w, 4, 600, game.HazardBounce)
	body.grounded = true
	body.vy = 300

	w.ContactPlatform(4)

	if body.vy != DefaultTuning().BounceSpeed {
		t.Fatalf("vy=%.1f after bounce, want %.1f", body.vy, DefaultTuning().BounceSpeed)
	}
}

func TestSideContactHasNoEffect(t *testing.T) {
	w, body, rep, _ := testWorld(t)
	addPlat(w, 3, 600, game.HazardPoison)
	body.grounded = false

	w.ContactPlatform(3)

	if w.Lives != game.MaxLives || len(rep.triggers) != 0 || w.Level != 0 {
		t.Fatalf("side contact applied effects: lives=%d triggers=%v level=%d", w.Lives, rep.triggers, w.Level)
	}
}

func TestPoisonContactOnce(t *testing.T) {
	w, body, rep, _ := testWorld(t)
	addPlat(w, 5, 600, game.HazardPoison)
	body.grounded = true

	w.ContactPlatform(5)
	w.ContactPlatform(5)

	if w.Lives != game.MaxLives-1 {
		t.Fatalf("lives %d, want one deducted", w.Lives)
	}
	if len(rep.triggers) != 1 || rep.triggers[0] != 5 {
		t.Fatalf("triggers %v, want exactly one for platform 5", rep.triggers)
	}
}

func TestFragileContactDestroysAfterDelay(t *testing.T) {
	w, body, rep, sched := testWorld(t)
	addPlat(w, 6, 600, game.HazardFragile)
	body.grounded = true

	w.ContactPlatform(6)
	w.ContactPlatform(6)

	if len(rep.triggers) != 1 {
		t.Fatalf("triggers %v, want one", rep.triggers)
	}
	if _, ok := w.platforms[6]; !ok {
		t.Fatal("fragile platform removed before its delay")
	}

	sched.Advance(game.FragileDestroyDelay)
	if _, ok := w.platforms[6]; ok {
		t.Fatal("fragile platform survived its destroy delay")
	}
}

func TestPeerTriggerSchedulesFragileDestroy(t *testing.T) {
	w, _, rep, sched := testWorld(t)
	addPlat(w, 7, 600, game.HazardFragile)

	w.ApplyTrigger(game.PlatformTriggeredMessage{PlatformID: 7, PlayerID: "other"})

	if len(rep.triggers) != 0 {
		t.Fatalf("peer trigger must not be re-reported, got %v", rep.triggers)
	}
	sched.Advance(game.FragileDestroyDelay)
	if _, ok := w.platforms[7]; ok {
		t.Fatal("fragile platform survived a peer trigger")
	}
}

func TestContactAdvancesLevel(t *testing.T) {
	w, body, _, _ := testWorld(t)
	body.grounded = true
	addPlat(w, 14, 600, game.HazardNormal)
	addPlat(w, 4, 500, game.HazardNormal)

	w.ContactPlatform(14)
	if w.Level != 8 {
		t.Fatalf("level %d after platform 14, want 8", w.Level)
	}
	w.ContactPlatform(4)
	if w.Level != 8 {
		t.Fatalf("level %d after lower platform, must not regress", w.Level)
	}
}

func TestStartResetsPreviousRound(t *testing.T) {
	w, body, _, sched := testWorld(t)
	addPlat(w, 8, 600, game.HazardFragile)
	body.grounded = true
	w.ContactPlatform(8)
	w.Lives = 2
	w.Dead = true

	w.Start(game.RoomSnapshot{
		GameStartTime: 5_000,
		ServerTime:    5_000,
		Players: []game.PlayerInfo{
			{ID: "me", X: 480, Y: 180, Alive: true, Lives: game.MaxLives, Level: 1},
			{ID: "other", X: 580, Y: 180, Alive: true, Lives: game.MaxLives, Level: 1},
		},
		Platforms: []game.PlatformInfo{
			{ID: 100, X: 480, Y: 240, InitialY: 240, Width: 300, Height: 21, Type: game.HazardNormal},
		},
	})

	if w.Dead || w.Lives != game.MaxLives || w.Level != 1 {
		t.Fatalf("dead=%v lives=%d level=%d after start, want fresh state", w.Dead, w.Lives, w.Level)
	}
	if _, ok := w.platforms[8]; ok {
		t.Fatal("stale platform survived start")
	}
	if _, ok := w.platforms[100]; !ok {
		t.Fatal("snapshot platform missing")
	}
	if _, ok := w.remotes["other"]; !ok {
		t.Fatal("snapshot remote missing")
	}
	if body.x != 480 || body.y != 180 {
		t.Fatalf("body at (%.0f, %.0f), want snapshot spawn", body.x, body.y)
	}

	// The old fragile timer must not fire into the new round.
	sched.Advance(game.FragileDestroyDelay)
	if _, ok := w.platforms[100]; !ok {
		t.Fatal("cancelled timer from the previous round removed a new platform")
	}
}

func TestAddPlatformsPlacesAtDerivedY(t *testing.T) {
	w, _, _, _ := testWorld(t)
	w.gameStartTime = 10_000

	w.AddPlatforms(game.NewPlatformsMessage{
		ServerTime: 12_000,
		Platforms: []game.PlatformInfo{
			{ID: 50, X: 480, Y: 3840, InitialY: 3840, Width: 300, Height: 21, Type: game.HazardNormal},
		},
	})

	p := w.platforms[50]
	want := DerivedPlatformY(3840, -180, 10_000, 12_000)
	if math.Abs(p.Y-want) > 0.001 {
		t.Fatalf("new platform y=%.1f, want derived %.1f", p.Y, want)
	}
}
