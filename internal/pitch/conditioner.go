package pitch

import (
	"math"

	"github.com/0xlemi/guitartune/internal/audio"
)

const (
	DefaultHighPassAlpha = 0.95
	DefaultGateRatio     = 0.15
)

// Conditioner applies a first-order high-pass filter followed by an
// adaptive noise gate. Each buffer is processed independently: no filter
// state carries over between calls.
type Conditioner struct {
	Alpha     float64 // high-pass coefficient
	GateRatio float64 // gate threshold as a fraction of RMS
}

// NewConditioner creates a conditioner with the default coefficients.
func NewConditioner() *Conditioner {
	return &Conditioner{
		Alpha:     DefaultHighPassAlpha,
		GateRatio: DefaultGateRatio,
	}
}

// Condition returns a new buffer of the same length. The input is not
// modified.
func (c *Conditioner) Condition(buffer audio.Buffer) audio.Buffer {
	out := audio.Buffer{SampleRate: buffer.SampleRate}
	if len(buffer.Samples) == 0 {
		out.Samples = []float32{}
		return out
	}
	filtered := highPass(buffer.Samples, c.Alpha)
	out.Samples = gate(filtered, c.GateRatio)
	return out
}

// highPass computes y[n] = alpha*(y[n-1] + x[n] - x[n-1]) with y[0] = 0.
func highPass(x []float32, alpha float64) []float64 {
	y := make([]float64, len(x))
	prevIn := float64(x[0])
	prevOut := 0.0
	for i := 1; i < len(x); i++ {
		in := float64(x[i])
		prevOut = alpha * (prevOut + in - prevIn)
		y[i] = prevOut
		prevIn = in
	}
	return y
}

// gate zeroes every sample whose magnitude is below ratio * RMS.
func gate(x []float64, ratio float64) []float32 {
	sumSquares := 0.0
	for _, v := range x {
		sumSquares += v * v
	}
	threshold := ratio * math.Sqrt(sumSquares/float64(len(x)))

	out := make([]float32, len(x))
	for i, v := range x {
		if math.Abs(v) < threshold {
			continue
		}
		out[i] = float32(v)
	}
	return out
}
