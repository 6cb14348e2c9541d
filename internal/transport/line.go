// Package transport serializes tuning status for a paired device.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/0xlemi/guitartune/internal/tuning"
)

var ErrClosed = errors.New("transport closed")

// Line writes one human-readable command per status:
//
//	TUNE <detected> <cents> <target>
//
// with "-" standing in for missing fields. The transport disconnects after
// the first write error.
type Line struct {
	mutex     sync.Mutex
	w         io.Writer
	connected bool
}

// NewLine creates a connected transport writing to w.
func NewLine(w io.Writer) *Line {
	return &Line{w: w, connected: true}
}

// Format renders the command for st.
func Format(st tuning.Status) string {
	target := st.TargetNote
	if target == "" {
		target = "-"
	}
	if !st.Detected {
		return fmt.Sprintf("TUNE - - %s", target)
	}
	note := st.DetectedNote
	if note == "" {
		note = "-"
	}
	if st.TargetFrequency <= 0 {
		return fmt.Sprintf("TUNE %s - %s", note, target)
	}
	return fmt.Sprintf("TUNE %s %+.1f %s", note, st.Cents, target)
}

// Connected reports whether writes are still accepted.
func (l *Line) Connected() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.connected
}

// SendStatus writes the command for st followed by a newline.
func (l *Line) SendStatus(st tuning.Status) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.connected {
		return ErrClosed
	}
	if _, err := io.WriteString(l.w, Format(st)+"\n"); err != nil {
		l.connected = false
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// Close disconnects the transport and closes the writer if it is a Closer.
func (l *Line) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.connected {
		return nil
	}
	l.connected = false
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
