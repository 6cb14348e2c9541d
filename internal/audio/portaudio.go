package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// inputStream is the part of *portaudio.Stream torn down by Stop.
type inputStream interface {
	Stop() error
	Close() error
}

// terminate releases PortAudio. Replaced in tests.
var terminate = portaudio.Terminate

// PortAudioSource captures the default input device through PortAudio.
// The stream callback never takes mutex: PortAudio waits for a running
// callback inside Stream.Stop, which is called with mutex held.
type PortAudioSource struct {
	slot        handlerSlot
	mutex       sync.Mutex
	isCapturing bool
	stream      inputStream
	bufferSize  int
	sampleRate  int
	channels    int
	gainBits    atomic.Uint32 // float32 bits of the amplification factor
}

// NewPortAudioSource creates a source reading bufferSize frames per
// callback. PortAudio itself is only initialized on Start.
func NewPortAudioSource(bufferSize, sampleRate, channels int) *PortAudioSource {
	if channels < 1 {
		channels = 1
	}
	c := &PortAudioSource{
		bufferSize: bufferSize,
		sampleRate: sampleRate,
		channels:   channels,
	}
	c.gainBits.Store(math.Float32bits(1.0))
	return c
}

// SampleRate returns the capture rate.
func (c *PortAudioSource) SampleRate() int {
	return c.sampleRate
}

// OnSamples registers the buffer callback.
func (c *PortAudioSource) OnSamples(h Handler) {
	c.slot.set(h)
}

// Start initializes PortAudio and opens the default input stream.
func (c *PortAudioSource) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isCapturing {
		return ErrAlreadyStarted
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize portaudio: %v", ErrSourceUnavailable, err)
	}

	stream, err := portaudio.OpenDefaultStream(
		c.channels, // input channels
		0,          // no output
		float64(c.sampleRate),
		c.bufferSize, // frames per buffer
		c.processAudio,
	)
	if err != nil {
		terminate()
		return fmt.Errorf("%w: open input stream: %v", ErrSourceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		terminate()
		return fmt.Errorf("%w: start input stream: %v", ErrSourceUnavailable, err)
	}

	c.stream = stream
	c.isCapturing = true

	logrus.WithFields(logrus.Fields{
		"function":    "PortAudioSource.Start",
		"sample_rate": c.sampleRate,
		"buffer_size": c.bufferSize,
		"channels":    c.channels,
	}).Info("Audio capture started")
	return nil
}

// Stop ends audio capture and terminates PortAudio. PortAudio is
// terminated even when tearing down the stream fails, so a later Start
// initializes it again from a balanced state.
func (c *PortAudioSource) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isCapturing {
		return ErrNotStarted
	}
	c.isCapturing = false

	stream := c.stream
	c.stream = nil
	err := errors.Join(stream.Stop(), stream.Close(), terminate())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "PortAudioSource.Stop",
			"error":    err,
		}).Warn("Audio capture did not stop cleanly")
		return err
	}

	logrus.WithField("function", "PortAudioSource.Stop").Info("Audio capture stopped")
	return nil
}

// processAudio is the PortAudio stream callback. Multi-channel input is
// averaged down to mono.
func (c *PortAudioSource) processAudio(in []float32) {
	gain := c.Amplification()

	frames := len(in) / c.channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := float32(0)
		for ch := 0; ch < c.channels; ch++ {
			sum += in[i*c.channels+ch]
		}
		mono[i] = clamp(sum / float32(c.channels) * gain)
	}

	c.slot.emit(Buffer{Samples: mono, SampleRate: c.sampleRate})
}

// IsCapturing returns true if currently capturing audio
func (c *PortAudioSource) IsCapturing() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.isCapturing
}

// SetAmplification sets the audio amplification factor. It is safe to call
// while capturing.
func (c *PortAudioSource) SetAmplification(factor float32) {
	// Ensure amplification is positive
	if factor < 0.1 {
		factor = 0.1
	}
	c.gainBits.Store(math.Float32bits(factor))
}

// Amplification returns the current amplification factor.
func (c *PortAudioSource) Amplification() float32 {
	return math.Float32frombits(c.gainBits.Load())
}

// clamp keeps amplified samples inside the normalized range.
func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
