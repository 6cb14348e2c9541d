package main

import (
	"fmt"
	"io"
	"time"

	"github.com/0xlemi/guitartune/internal/audio"
	"github.com/0xlemi/guitartune/internal/config"
	"github.com/0xlemi/guitartune/internal/pitch"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(flags *config.Config, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run the pitch pipeline over a WAV file and print stable readings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(flags, cmd.Flags(), *configPath)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cfg, false)
			if err != nil {
				return err
			}
			defer closeLog()

			samples, rate, err := audio.LoadWav(args[0])
			if err != nil {
				return err
			}
			opts, err := cfg.SessionOptions()
			if err != nil {
				return err
			}
			pipeline := pitch.NewPipeline(opts.Conditioner, opts.Estimator, nil)
			return analyze(cmd.OutOrStdout(), pipeline, samples, rate, cfg.BufferSize)
		},
	}
}

// analyze feeds consecutive windows through pipeline and prints a line
// whenever the stable note changes. It returns after the last whole window.
func analyze(w io.Writer, pipeline *pitch.Pipeline, samples []float32, rate, window int) error {
	last := ""
	for i := 0; i+window <= len(samples); i += window {
		buf := audio.Buffer{Samples: samples[i : i+window], SampleRate: rate}
		result := pipeline.Process(buf)

		at := time.Duration(i) * time.Second / time.Duration(rate)
		if !result.IsStable {
			if last != "" && !result.Candidate.Valid {
				if _, err := fmt.Fprintf(w, "%8.3fs  -\n", at.Seconds()); err != nil {
					return err
				}
				last = ""
			}
			continue
		}

		note, _ := pitch.ClosestNote(result.Stable)
		if note.Name == last {
			continue
		}
		last = note.Name
		cents := pitch.CentsDeviation(result.Stable, note.Frequency)
		if _, err := fmt.Fprintf(w, "%8.3fs  %-4s %8.2f Hz %+6.1f cents\n", at.Seconds(), note.Name, result.Stable, cents); err != nil {
			return err
		}
	}
	return nil
}
