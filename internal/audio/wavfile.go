package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

// WavSource replays a PCM WAV file as a stream of fixed-size buffers. When
// realtime is set, buffers are paced at the file's sample rate; otherwise
// they are delivered as fast as the handler consumes them.
type WavSource struct {
	slot       handlerSlot
	mutex      sync.Mutex
	path       string
	bufferSize int
	realtime   bool
	sampleRate int
	samples    []float32
	quit       chan struct{}
	done       chan struct{}
}

// NewWavSource creates a source for the WAV file at path. The file is read
// on Start.
func NewWavSource(path string, bufferSize int, realtime bool) *WavSource {
	return &WavSource{
		path:       path,
		bufferSize: bufferSize,
		realtime:   realtime,
	}
}

// LoadWav decodes a PCM WAV file into mono samples normalized to [-1, 1].
func LoadWav(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file: %s", path)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return downmix(pcm, int(decoder.BitDepth)), pcm.Format.SampleRate, nil
}

// downmix averages interleaved channels and scales integer samples by the
// bit depth.
func downmix(pcm *goaudio.IntBuffer, bitDepth int) []float32 {
	channels := pcm.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << uint(bitDepth-1))

	frames := len(pcm.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += pcm.Data[i*channels+ch]
		}
		out[i] = clamp(float32(float64(sum) / float64(channels) / scale))
	}
	return out
}

// SampleRate returns the file's sample rate. It is zero before Start.
func (s *WavSource) SampleRate() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.sampleRate
}

// OnSamples registers the buffer callback.
func (s *WavSource) OnSamples(h Handler) {
	s.slot.set(h)
}

// Start decodes the file and begins replay.
func (s *WavSource) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.quit != nil {
		return ErrAlreadyStarted
	}

	samples, rate, err := LoadWav(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	s.samples = samples
	s.sampleRate = rate
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	logrus.WithFields(logrus.Fields{
		"function":    "WavSource.Start",
		"path":        s.path,
		"sample_rate": rate,
		"samples":     len(samples),
	}).Info("WAV replay started")

	go s.replay(s.samples, rate, s.quit, s.done)
	return nil
}

func (s *WavSource) replay(samples []float32, rate int, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.realtime && rate > 0 {
		ticker := time.NewTicker(time.Duration(s.bufferSize) * time.Second / time.Duration(rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; i+s.bufferSize <= len(samples); i += s.bufferSize {
		if tick != nil {
			select {
			case <-tick:
			case <-quit:
				return
			}
		} else {
			select {
			case <-quit:
				return
			default:
			}
		}

		chunk := make([]float32, s.bufferSize)
		copy(chunk, samples[i:i+s.bufferSize])
		s.slot.emit(Buffer{Samples: chunk, SampleRate: rate})
	}
}

// Done is closed once every buffer of the file has been delivered or the
// replay was stopped. It is nil before Start.
func (s *WavSource) Done() <-chan struct{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.done
}

// Stop ends replay and waits for the replay goroutine to exit.
func (s *WavSource) Stop() error {
	s.mutex.Lock()
	if s.quit == nil {
		s.mutex.Unlock()
		return ErrNotStarted
	}
	quit, done := s.quit, s.done
	s.quit = nil
	s.mutex.Unlock()

	close(quit)
	<-done
	return nil
}
