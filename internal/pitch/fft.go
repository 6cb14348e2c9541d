package pitch

import (
	"math/cmplx"
	"sort"

	"github.com/0xlemi/guitartune/internal/audio"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// FFTEstimator implements pitch estimation using the strongest spectral peak
type FFTEstimator struct {
	minFrequency  float64 // Lowest frequency to detect (Hz)
	maxFrequency  float64 // Highest frequency to detect (Hz)
	peakThreshold float64 // Minimum peak height as fraction of highest peak
	noiseFloor    float64 // Minimum magnitude of the highest peak
}

// NewFFTEstimator creates a new FFT-based pitch estimator
func NewFFTEstimator() *FFTEstimator {
	return &FFTEstimator{
		minFrequency:  MinFrequency,
		maxFrequency:  MaxFrequency,
		peakThreshold: 0.2,
		noiseFloor:    0.01,
	}
}

// Peak represents a peak in the frequency spectrum
type Peak struct {
	Bin       int
	Magnitude float64
	Frequency float64
}

// Estimate analyzes an audio buffer and returns a pitch candidate
func (d *FFTEstimator) Estimate(buffer audio.Buffer) Candidate {
	if len(buffer.Samples) < MinBufferLength || buffer.SampleRate <= 0 {
		return Candidate{}
	}

	samples := make([]float64, len(buffer.Samples))
	for i, s := range buffer.Samples {
		samples[i] = float64(s)
	}
	window.Apply(samples, window.Hann)

	spectrum := fft.FFTReal(samples)
	freq, ok := d.fundamental(spectrum, buffer.SampleRate)
	if !ok || freq < d.minFrequency || freq > d.maxFrequency {
		return Candidate{}
	}
	return Candidate{Frequency: freq, Valid: true}
}

// fundamental picks the strongest interpolated peak inside the search band.
func (d *FFTEstimator) fundamental(spectrum []complex128, sampleRate int) (float64, bool) {
	// Only the first half of the spectrum carries information (Nyquist)
	half := spectrum[:len(spectrum)/2]

	// Frequency resolution (Hz per bin)
	binSizeHz := float64(sampleRate) / float64(len(spectrum))

	minBin := int(d.minFrequency / binSizeHz)
	if minBin < 1 {
		minBin = 1 // Avoid DC component
	}
	maxBin := int(d.maxFrequency/binSizeHz) + 1
	if maxBin >= len(half) {
		maxBin = len(half) - 1
	}
	if maxBin-minBin < 2 {
		return 0, false
	}

	mags := make([]float64, len(half))
	maxMagnitude := 0.0
	for i := minBin - 1; i <= maxBin; i++ {
		mags[i] = cmplx.Abs(half[i])
		if i >= minBin && mags[i] > maxMagnitude {
			maxMagnitude = mags[i]
		}
	}
	if maxMagnitude < d.noiseFloor {
		return 0, false
	}

	var peaks []Peak
	for i := minBin; i < maxBin; i++ {
		prev, current, next := mags[i-1], mags[i], mags[i+1]
		if current <= prev || current <= next || current < maxMagnitude*d.peakThreshold {
			continue
		}

		// Quadratic interpolation of the peak location:
		// delta = 0.5 * (R[k-1] - R[k+1]) / (R[k-1] - 2*R[k] + R[k+1])
		freq := float64(i) * binSizeHz
		if denom := prev - 2*current + next; denom != 0 {
			freq = (float64(i) + 0.5*(prev-next)/denom) * binSizeHz
		}
		peaks = append(peaks, Peak{Bin: i, Magnitude: current, Frequency: freq})
	}
	if len(peaks) == 0 {
		return 0, false
	}

	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].Magnitude > peaks[j].Magnitude
	})
	return peaks[0].Frequency, true
}
