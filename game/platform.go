package game

import (
	"math/rand/v2"
	"time"
)

type HazardType string

const (
	HazardNormal  HazardType = "normal"
	HazardFragile HazardType = "fragile"
	HazardBounce  HazardType = "bounce"
	HazardPoison  HazardType = "poison"
)

// Platform x is the segment's center. InitialY is fixed at creation; the
// current Y is always derived from it and the elapsed game time, never
// accumulated, so independently ticking peers agree on positions.
type Platform struct {
	ID        int
	X         float64
	Y         float64
	InitialY  float64
	Width     float64
	Height    float64
	Type      HazardType
	Triggered bool
	Destroyed bool

	triggeredAt time.Time
}

func (p *Platform) info() PlatformInfo {
	return PlatformInfo{
		ID:        p.ID,
		X:         p.X,
		Y:         p.Y,
		InitialY:  p.InitialY,
		Width:     p.Width,
		Height:    p.Height,
		Type:      p.Type,
		Triggered: p.Triggered,
	}
}

// Generator emits platform rows. It keeps no state between rows apart from
// the RNG and the id counter; ids are monotonic per room and never reused.
type Generator struct {
	width  float64
	tuning Tuning
	rng    *rand.Rand
	nextID int
}

func NewGenerator(width float64, tuning Tuning, rng *rand.Rand) *Generator {
	return &Generator{width: width, tuning: tuning, rng: rng}
}

// Row generates 0-2 platforms for the row at y. A hole of random width in
// [W/3, W/2] is placed first; each side then gets a platform if it has at
// least W/4 of room. One side may end up empty, the hole never does.
func (g *Generator) Row(y float64) []*Platform {
	minPlatformWidth := g.width / 4
	minHoleWidth := g.width / 3

	holeWidth := minHoleWidth + g.rng.Float64()*(g.width/6)
	holeStart := g.rng.Float64() * (g.width - holeWidth)
	holeEnd := holeStart + holeWidth

	leftSpace := holeStart
	rightSpace := g.width - holeEnd

	var row []*Platform

	if leftSpace >= minPlatformWidth {
		platformWidth := minPlatformWidth + g.rng.Float64()*(leftSpace-minPlatformWidth)
		platformX := g.rng.Float64()*(leftSpace-platformWidth) + platformWidth/2
		row = append(row, g.place(platformX, y, platformWidth))
	}

	if rightSpace >= minPlatformWidth {
		platformWidth := minPlatformWidth + g.rng.Float64()*(rightSpace-minPlatformWidth)
		platformX := holeEnd + g.rng.Float64()*(rightSpace-platformWidth) + platformWidth/2
		row = append(row, g.place(platformX, y, platformWidth))
	}

	return row
}

func (g *Generator) place(x, y, width float64) *Platform {
	p := &Platform{
		ID:       g.nextID,
		X:        x,
		Y:        y,
		InitialY: y,
		Width:    width,
		Height:   PlatformHeight,
		Type:     g.rollHazard(),
	}
	g.nextID++
	return p
}

func (g *Generator) rollHazard() HazardType {
	roll := g.rng.IntN(100) + 1
	switch {
	case roll <= g.tuning.FragileThreshold:
		return HazardFragile
	case roll <= g.tuning.BounceThreshold:
		return HazardBounce
	case roll <= g.tuning.PoisonThreshold:
		return HazardPoison
	default:
		return HazardNormal
	}
}
