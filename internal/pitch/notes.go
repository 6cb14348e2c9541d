package pitch

import (
	"fmt"
	"math"
)

// Note is an entry of the equal-tempered note table.
type Note struct {
	Name      string  // e.g., "A4", "C#3"
	Frequency float64 // Frequency in Hz
}

const (
	// ConcertPitch is the reference frequency of A4.
	ConcertPitch = 440.0

	lowestOctave  = 0
	highestOctave = 8
)

// All note names in chromatic order
var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var (
	// noteTable spans C0 to B8, ordered by ascending frequency.
	noteTable = buildNoteTable()
	noteIndex = indexNotes(noteTable)
)

// buildNoteTable generates the table from f(n) = 440 * 2^((n-57)/12), where
// n counts semitones from C0 and 57 is A4.
func buildNoteTable() []Note {
	notes := make([]Note, 0, (highestOctave-lowestOctave+1)*len(noteNames))
	for octave := lowestOctave; octave <= highestOctave; octave++ {
		for i, name := range noteNames {
			n := octave*len(noteNames) + i
			notes = append(notes, Note{
				Name:      fmt.Sprintf("%s%d", name, octave),
				Frequency: ConcertPitch * math.Pow(2, float64(n-57)/12),
			})
		}
	}
	return notes
}

func indexNotes(notes []Note) map[string]Note {
	index := make(map[string]Note, len(notes))
	for _, n := range notes {
		index[n.Name] = n
	}
	return index
}

// Notes returns a copy of the note table.
func Notes() []Note {
	out := make([]Note, len(noteTable))
	copy(out, noteTable)
	return out
}

// LookupNote returns the table entry with the given name.
func LookupNote(name string) (Note, bool) {
	n, ok := noteIndex[name]
	return n, ok
}

// ClosestNote returns the table entry nearest to frequency. Ties resolve to
// the entry found first in table order. It returns false for non-positive
// frequencies.
func ClosestNote(frequency float64) (Note, bool) {
	if frequency <= 0 {
		return Note{}, false
	}
	best := noteTable[0]
	bestDiff := math.Abs(frequency - best.Frequency)
	for _, n := range noteTable[1:] {
		if d := math.Abs(frequency - n.Frequency); d < bestDiff {
			best = n
			bestDiff = d
		}
	}
	return best, true
}

// CentsDeviation returns 1200*log2(detected/target). It returns 0 when
// either frequency is not positive, so callers must check validity
// themselves.
func CentsDeviation(detected, target float64) float64 {
	if detected <= 0 || target <= 0 {
		return 0
	}
	return 1200 * math.Log2(detected/target)
}
