package client

import "time"

// The rendering/physics engine is a collaborator, not part of this package.
// These are the three things the predictor needs from it.

// Body is the engine-owned rigid body for the local player: velocity-based
// movement with gravity applied by the engine. The predictor steers it and
// reads it back for reporting.
type Body interface {
	Position() (x, y float64)
	SetPosition(x, y float64)
	Velocity() (vx, vy float64)
	SetVelocity(vx, vy float64)
	// TouchingDown reports whether the body rested on a platform during the
	// engine's last collision pass.
	TouchingDown() bool
}

// Scheduler runs a callback after a delay. Implementations must deliver the
// callback on the goroutine driving World.Step (engine schedulers do), so
// World state stays single-threaded. The returned func cancels the callback.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// Clock exists so tests can pin time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
