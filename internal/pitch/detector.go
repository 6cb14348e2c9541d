package pitch

import (
	"errors"
	"fmt"

	"github.com/0xlemi/guitartune/internal/audio"
)

// Errors
var (
	ErrUnknownEstimator = errors.New("unknown pitch estimator")
)

// Estimator names accepted by NewEstimator.
const (
	EstimatorAutocorr = "autocorr"
	EstimatorFFT      = "fft"
)

// Candidate is the outcome of a single pitch estimate. Valid is false when
// the buffer was too short or no periodicity cleared the threshold.
type Candidate struct {
	Frequency float64
	Valid     bool
}

// Estimator defines the interface for pitch estimation
type Estimator interface {
	// Estimate analyzes an audio buffer and returns a pitch candidate
	Estimate(buffer audio.Buffer) Candidate
}

// NewEstimator returns the estimator registered under name.
func NewEstimator(name string) (Estimator, error) {
	switch name {
	case EstimatorAutocorr, "":
		return NewAutocorrEstimator(), nil
	case EstimatorFFT:
		return NewFFTEstimator(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEstimator, name)
	}
}

// Result is what the pipeline reports for one analysed buffer.
type Result struct {
	Candidate Candidate
	Stable    float64 // valid only when IsStable
	IsStable  bool
}

// Pipeline chains noise conditioning, estimation and stabilization. It
// holds the stability state and must be driven from a single goroutine.
type Pipeline struct {
	conditioner *Conditioner
	estimator   Estimator
	stabilizer  *Stabilizer
}

// NewPipeline creates a pipeline. A nil conditioner disables conditioning.
func NewPipeline(conditioner *Conditioner, estimator Estimator, stabilizer *Stabilizer) *Pipeline {
	if stabilizer == nil {
		stabilizer = NewStabilizer()
	}
	return &Pipeline{
		conditioner: conditioner,
		estimator:   estimator,
		stabilizer:  stabilizer,
	}
}

// Process runs one buffer through the pipeline.
func (p *Pipeline) Process(buffer audio.Buffer) Result {
	if p.conditioner != nil {
		buffer = p.conditioner.Condition(buffer)
	}
	candidate := p.estimator.Estimate(buffer)
	stable, ok := p.stabilizer.Push(candidate)
	return Result{
		Candidate: candidate,
		Stable:    stable,
		IsStable:  ok,
	}
}

// Reset clears the stability state.
func (p *Pipeline) Reset() {
	p.stabilizer.Reset()
}
