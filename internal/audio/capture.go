package audio

import (
	"errors"
	"math"
	"sync"
)

// Errors
var (
	// ErrSourceUnavailable is returned when the sample source cannot be
	// acquired (no permission, no device, driver failure).
	ErrSourceUnavailable = errors.New("audio source unavailable")
	ErrAlreadyStarted    = errors.New("audio capture already started")
	ErrNotStarted        = errors.New("audio capture not started")
)

// Buffer represents a buffer of mono audio samples normalized to [-1, 1].
// A Buffer is never modified after it is handed to a callback.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples in the buffer.
func (b Buffer) Len() int {
	return len(b.Samples)
}

// Level calculates the RMS and dB level of the buffer.
func (b Buffer) Level() (rms, db float64) {
	if len(b.Samples) == 0 {
		return 0, -100
	}

	sumSquares := 0.0
	for _, sample := range b.Samples {
		s := float64(sample)
		sumSquares += s * s
	}
	rms = math.Sqrt(sumSquares / float64(len(b.Samples)))

	// Avoid log(0)
	if rms > 0.0000001 {
		db = 20 * math.Log10(rms)
	} else {
		db = -100
	}
	return rms, db
}

// Handler receives each captured buffer. It is called on the source's own
// goroutine and must not block for long.
type Handler func(Buffer)

// Source defines the interface for a sample source.
type Source interface {
	// SampleRate is the declared rate of every delivered buffer.
	SampleRate() int

	// OnSamples registers the callback receiving captured buffers. Only the
	// most recently registered handler is called.
	OnSamples(h Handler)

	// Start begins audio capture. Failures wrap ErrSourceUnavailable.
	Start() error

	// Stop ends audio capture.
	Stop() error
}

// handlerSlot holds the registered handler for a source.
type handlerSlot struct {
	mutex   sync.RWMutex
	handler Handler
}

func (s *handlerSlot) set(h Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handler = h
}

func (s *handlerSlot) emit(b Buffer) {
	s.mutex.RLock()
	h := s.handler
	s.mutex.RUnlock()
	if h != nil {
		h(b)
	}
}

// ManualSource is a Source fed by its owner through Push. It is used for
// replaying prepared buffers and in tests.
type ManualSource struct {
	slot       handlerSlot
	mutex      sync.Mutex
	sampleRate int
	capturing  bool
	startErr   error
}

// NewManualSource creates a source delivering buffers at sampleRate.
func NewManualSource(sampleRate int) *ManualSource {
	return &ManualSource{sampleRate: sampleRate}
}

// FailStartWith makes subsequent Start calls fail with err.
func (s *ManualSource) FailStartWith(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.startErr = err
}

// SampleRate returns the declared sample rate.
func (s *ManualSource) SampleRate() int {
	return s.sampleRate
}

// OnSamples registers the buffer callback.
func (s *ManualSource) OnSamples(h Handler) {
	s.slot.set(h)
}

// Start begins delivering pushed buffers.
func (s *ManualSource) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.startErr != nil {
		return errors.Join(ErrSourceUnavailable, s.startErr)
	}
	if s.capturing {
		return ErrAlreadyStarted
	}
	s.capturing = true
	return nil
}

// Stop ends delivery; pushes after Stop are dropped.
func (s *ManualSource) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.capturing {
		return ErrNotStarted
	}
	s.capturing = false
	return nil
}

// IsCapturing returns true if currently capturing audio
func (s *ManualSource) IsCapturing() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.capturing
}

// Push delivers samples to the registered handler. It reports whether the
// buffer was delivered.
func (s *ManualSource) Push(samples []float32) bool {
	if !s.IsCapturing() {
		return false
	}
	buf := Buffer{
		Samples:    make([]float32, len(samples)),
		SampleRate: s.sampleRate,
	}
	copy(buf.Samples, samples)
	s.slot.emit(buf)
	return true
}
