package tuning

import (
	"math"
	"time"
)

// Tier classifies how far a reading is from its target.
type Tier int

const (
	TierEmpty Tier = iota // no reliable reading at this tick
	TierInTune
	TierSlight
	TierFar
)

const (
	// InTuneCents is the largest deviation still shown as in tune.
	InTuneCents = 5.0
	// SlightCents is the largest deviation shown as slightly off.
	SlightCents = 20.0
)

func (t Tier) String() string {
	switch t {
	case TierInTune:
		return "in-tune"
	case TierSlight:
		return "slight"
	case TierFar:
		return "far"
	default:
		return "empty"
	}
}

// TierFor classifies a cents deviation.
func TierFor(cents float64) Tier {
	switch d := math.Abs(cents); {
	case d <= InTuneCents:
		return TierInTune
	case d <= SlightCents:
		return TierSlight
	default:
		return TierFar
	}
}

// GraphPoint is one sample of the scrolling deviation graph. Empty points
// (HasCents false) keep the graph moving through silence.
type GraphPoint struct {
	Cents    float64
	HasCents bool
	Time     time.Time
	Tier     Tier
}

func emptyPoint(now time.Time) GraphPoint {
	return GraphPoint{Time: now, Tier: TierEmpty}
}

func centsPoint(now time.Time, cents float64) GraphPoint {
	return GraphPoint{
		Cents:    cents,
		HasCents: true,
		Time:     now,
		Tier:     TierFor(cents),
	}
}
