package tuning

import (
	"github.com/0xlemi/guitartune/internal/pitch"
)

// DefaultNote is the fallback target when a note name is unknown or auto
// mode is switched off without a usable detection.
const DefaultNote = "E2"

// standardTuning lists the open strings of a six-string guitar in standard
// tuning, low to high. Auto mode only ever adopts one of these.
var standardTuning = [...]string{"E2", "A2", "D3", "G3", "B3", "E4"}

var standardSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(standardTuning))
	for _, n := range standardTuning {
		set[n] = struct{}{}
	}
	return set
}()

// StandardTuning returns the reference notes auto mode may select.
func StandardTuning() []string {
	out := make([]string, len(standardTuning))
	copy(out, standardTuning[:])
	return out
}

// IsStandard reports whether name is one of the standard tuning notes.
func IsStandard(name string) bool {
	_, ok := standardSet[name]
	return ok
}

// Target is the note being tuned to. The zero value is unresolved: auto
// mode is waiting for a detection to pick one.
type Target struct {
	Note      string
	Frequency float64
}

// Resolved reports whether the target names a note.
func (t Target) Resolved() bool {
	return t.Frequency > 0
}

func targetFromNote(n pitch.Note) Target {
	return Target{Note: n.Name, Frequency: n.Frequency}
}

// resolveTarget looks name up in the note table, falling back to fallback
// and then to DefaultNote.
func resolveTarget(name, fallback string) (Target, bool) {
	if n, ok := pitch.LookupNote(name); ok {
		return targetFromNote(n), true
	}
	if n, ok := pitch.LookupNote(fallback); ok {
		return targetFromNote(n), false
	}
	n, _ := pitch.LookupNote(DefaultNote)
	return targetFromNote(n), false
}
