package pitch

import (
	"math/rand"
	"testing"

	"github.com/0xlemi/guitartune/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutocorrSine(t *testing.T) {
	c := NewAutocorrEstimator().Estimate(sineBuffer(220, 44100, 2048, 0.5))

	require.True(t, c.Valid)
	assert.InEpsilon(t, 220.0, c.Frequency, 0.05)
}

func TestAutocorrGuitarStrings(t *testing.T) {
	e := NewAutocorrEstimator()
	for _, freq := range []float64{110.0, 146.83, 246.94, 329.63} {
		c := e.Estimate(sineBuffer(freq, 44100, 2048, 0.5))
		require.True(t, c.Valid, "%.2f Hz", freq)
		assert.InEpsilon(t, freq, c.Frequency, 0.05, "%.2f Hz", freq)
	}
}

func TestAutocorrTooShort(t *testing.T) {
	c := NewAutocorrEstimator().Estimate(sineBuffer(220, 44100, MinBufferLength-1, 0.5))
	assert.False(t, c.Valid)
}

func TestAutocorrSilence(t *testing.T) {
	c := NewAutocorrEstimator().Estimate(audio.Buffer{Samples: make([]float32, 2048), SampleRate: 44100})
	assert.False(t, c.Valid)
}

func TestAutocorrNoise(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	samples := make([]float32, 2048)
	for i := range samples {
		samples[i] = float32(r.Float64()*2 - 1)
	}
	c := NewAutocorrEstimator().Estimate(audio.Buffer{Samples: samples, SampleRate: 44100})
	assert.False(t, c.Valid)
}

func TestAutocorrMissingSampleRate(t *testing.T) {
	buf := sineBuffer(220, 44100, 2048, 0.5)
	buf.SampleRate = 0
	assert.False(t, NewAutocorrEstimator().Estimate(buf).Valid)
}

func TestFFTSine(t *testing.T) {
	c := NewFFTEstimator().Estimate(sineBuffer(440, 44100, 2048, 0.5))

	require.True(t, c.Valid)
	assert.InEpsilon(t, 440.0, c.Frequency, 0.03)
}

func TestFFTSilence(t *testing.T) {
	c := NewFFTEstimator().Estimate(audio.Buffer{Samples: make([]float32, 2048), SampleRate: 44100})
	assert.False(t, c.Valid)
}

func TestNewEstimator(t *testing.T) {
	e, err := NewEstimator(EstimatorAutocorr)
	require.NoError(t, err)
	assert.IsType(t, &AutocorrEstimator{}, e)

	e, err = NewEstimator(EstimatorFFT)
	require.NoError(t, err)
	assert.IsType(t, &FFTEstimator{}, e)

	_, err = NewEstimator("yin")
	assert.ErrorIs(t, err, ErrUnknownEstimator)
}
