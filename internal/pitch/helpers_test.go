package pitch

import (
	"math"

	"github.com/0xlemi/guitartune/internal/audio"
)

func sineBuffer(freq float64, sampleRate, n int, amplitude float64) audio.Buffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return audio.Buffer{Samples: samples, SampleRate: sampleRate}
}
