package game

import "time"

// All coordinates are in scaled pixels: the base 320x512 playfield rendered
// at 3x. Constants below are pre-multiplied.
const (
	GameWidth  = 960
	GameHeight = 1536

	PlatformHeight        = 21
	InitialPlatformStartY = 240
	InitialPlatformRows   = 7

	// How many screen heights of platforms are kept generated ahead of the
	// visible area.
	PreloadScreens = 2.5

	// Platforms scrolled above this y are retired.
	TopRemovalY = -100

	MaxLives         = 5
	CountdownSeconds = 3

	TickRate         = 20
	FragileDestroyDelay = 400 * time.Millisecond
)

var tickInterval = time.Second / TickRate

// Calibration frames go out every calibrationTicks game ticks (100ms at 20Hz).
const calibrationTicks = 2

// Tuning holds the generation and scroll parameters. The values travel with
// the room instead of living in package globals so presets can diverge
// without touching the simulation.
type Tuning struct {
	// ScrollSpeed is negative: platforms move up.
	ScrollSpeed float64
	// Gap is the vertical distance between generated rows.
	Gap float64

	// Cumulative hazard thresholds for an integer roll in [1,100].
	FragileThreshold int
	BounceThreshold  int
	PoisonThreshold  int
}

func MultiplayerTuning() Tuning {
	return Tuning{
		ScrollSpeed:      -180,
		Gap:              300,
		FragileThreshold: 20,
		BounceThreshold:  33,
		PoisonThreshold:  40,
	}
}
