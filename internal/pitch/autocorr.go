package pitch

import (
	"github.com/0xlemi/guitartune/internal/audio"
)

const (
	// MinBufferLength is the shortest buffer the estimators analyse.
	MinBufferLength = 256

	// Guitar fundamentals sit between the low E (~82 Hz) and the upper frets
	// of the high E string.
	MinFrequency = 80.0
	MaxFrequency = 1000.0

	DefaultCorrelationThreshold = 0.4

	// lagSteps is roughly how many lags are examined per buffer.
	lagSteps = 100
)

// AutocorrEstimator finds the period with the strongest normalized
// autocorrelation. Lags are sampled at a stride so that about lagSteps
// candidates are examined regardless of sample rate.
type AutocorrEstimator struct {
	Threshold float64
}

// NewAutocorrEstimator creates an estimator with the default threshold.
func NewAutocorrEstimator() *AutocorrEstimator {
	return &AutocorrEstimator{Threshold: DefaultCorrelationThreshold}
}

// Estimate returns the dominant frequency of the buffer, if any.
func (e *AutocorrEstimator) Estimate(buffer audio.Buffer) Candidate {
	x := buffer.Samples
	n := len(x)
	if n < MinBufferLength || buffer.SampleRate <= 0 {
		return Candidate{}
	}

	minPeriod := int(float64(buffer.SampleRate) / MaxFrequency)
	maxPeriod := min(int(float64(buffer.SampleRate)/MinFrequency), n/3)
	if minPeriod < 1 {
		minPeriod = 1
	}
	if maxPeriod <= minPeriod {
		return Candidate{}
	}
	stride := max(1, (maxPeriod-minPeriod)/lagSteps)

	bestLag := 0
	bestCorr := 0.0
	for p := minPeriod; p <= maxPeriod; p += stride {
		limit := min(n-p, n/2)
		var num, energy float64
		for i := 0; i < limit; i++ {
			a := float64(x[i])
			num += a * float64(x[i+p])
			energy += a * a
		}
		if energy == 0 {
			continue
		}
		if corr := num / energy; bestLag == 0 || corr > bestCorr {
			bestLag = p
			bestCorr = corr
		}
	}

	if bestLag == 0 || bestCorr <= e.Threshold {
		return Candidate{}
	}
	return Candidate{
		Frequency: float64(buffer.SampleRate) / float64(bestLag),
		Valid:     true,
	}
}
