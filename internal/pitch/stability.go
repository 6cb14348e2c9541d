package pitch

const (
	// StabilityThreshold is the number of consecutive consistent candidates
	// needed before a frequency is reported.
	StabilityThreshold = 3

	// StabilityTolerance is the allowed relative drift between consecutive
	// candidates.
	StabilityTolerance = 0.05
)

// StabilityState is the debouncer's memory. The zero value means no
// frequency has been seen.
type StabilityState struct {
	Last    float64
	HasLast bool
	Count   int
}

// Filter debounces one candidate. An invalid candidate resets the state. A
// candidate outside the tolerance re-anchors on the new frequency with a
// count of one. The candidate's frequency is reported once the count reaches
// StabilityThreshold.
func Filter(c Candidate, s StabilityState) (float64, bool, StabilityState) {
	if !c.Valid {
		return 0, false, StabilityState{}
	}
	if !s.HasLast {
		return 0, false, StabilityState{Last: c.Frequency, HasLast: true, Count: 1}
	}

	tolerance := StabilityTolerance * s.Last
	if diff := c.Frequency - s.Last; diff <= tolerance && diff >= -tolerance {
		s.Count++
	} else {
		s = StabilityState{Last: c.Frequency, HasLast: true, Count: 1}
	}

	if s.Count >= StabilityThreshold {
		return c.Frequency, true, s
	}
	return 0, false, s
}

// Stabilizer owns a StabilityState across calls.
type Stabilizer struct {
	state StabilityState
}

// NewStabilizer creates an empty stabilizer.
func NewStabilizer() *Stabilizer {
	return &Stabilizer{}
}

// Push filters c and returns the stable frequency, if any.
func (s *Stabilizer) Push(c Candidate) (float64, bool) {
	f, ok, next := Filter(c, s.state)
	s.state = next
	return f, ok
}

// State returns a copy of the current state.
func (s *Stabilizer) State() StabilityState {
	return s.state
}

// Reset forgets all history.
func (s *Stabilizer) Reset() {
	s.state = StabilityState{}
}
