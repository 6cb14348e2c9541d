package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xlemi/guitartune/internal/audio"
	"github.com/0xlemi/guitartune/internal/config"
	"github.com/0xlemi/guitartune/internal/transport"
	"github.com/0xlemi/guitartune/internal/tuning"
	"github.com/0xlemi/guitartune/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := config.Default()
	var configPath, input string

	root := &cobra.Command{
		Use:          "guitartune",
		Short:        "Real-time guitar tuner",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(flags, cmd.Flags(), configPath)
			if err != nil {
				return err
			}
			return runTuner(cmd.Context(), cfg, input)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	flags.RegisterFlags(root.PersistentFlags())
	root.Flags().StringVar(&input, "input", "", "replay a WAV file instead of the microphone")

	root.AddCommand(newAnalyzeCmd(flags, &configPath), newNotesCmd())
	return root
}

// setupLogging configures logrus. In interactive mode logs would corrupt
// the alternate screen, so they go to the log file or nowhere.
func setupLogging(cfg *config.Config, interactive bool) (func(), error) {
	logrus.SetLevel(cfg.Level())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logrus.SetOutput(f)
		return func() { f.Close() }, nil
	case interactive:
		logrus.SetOutput(io.Discard)
	default:
		logrus.SetOutput(os.Stderr)
	}
	return func() {}, nil
}

// openStatusOut returns the writer for status lines. "-" is stdout, which
// is never closed.
func openStatusOut(path string) (io.Writer, error) {
	if path == "-" {
		return struct{ io.Writer }{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open status output: %w", err)
	}
	return f, nil
}

func runTuner(ctx context.Context, cfg *config.Config, input string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := isatty.IsTerminal(os.Stdout.Fd()) && cfg.StatusOut != "-"
	closeLog, err := setupLogging(cfg, interactive)
	if err != nil {
		return err
	}
	defer closeLog()

	var (
		source   audio.Source
		replayed <-chan struct{}
	)
	if input != "" {
		source = audio.NewWavSource(input, cfg.BufferSize, true)
	} else {
		mic := audio.NewPortAudioSource(cfg.BufferSize, cfg.SampleRate, cfg.Channels)
		mic.SetAmplification(float32(cfg.Amplification))
		source = mic
	}

	opts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	session := tuning.NewSession(source, opts)
	defer session.Close()
	if cfg.AutoMode {
		session.SetAutoMode(true)
	}

	if cfg.StatusOut != "" {
		w, err := openStatusOut(cfg.StatusOut)
		if err != nil {
			return err
		}
		line := transport.NewLine(w)
		defer line.Close()
		session.AttachTransport(line)
	}

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start tuner: %w", err)
	}
	if wav, ok := source.(*audio.WavSource); ok {
		replayed = wav.Done()
	}

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	if interactive {
		g.Go(func() error {
			p := tea.NewProgram(ui.NewModel(gctx, session, updates), tea.WithAltScreen(), tea.WithContext(gctx))
			_, err := p.Run()
			stop()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	} else {
		g.Go(func() error {
			return logStatuses(gctx, updates, replayed, session.Pending)
		})
	}
	return g.Wait()
}

// drainPoll is how often logStatuses checks for outstanding analysis once
// the replayed file is exhausted.
const drainPoll = 10 * time.Millisecond

// logStatuses reports every status until ctx ends or the subscription
// closes. Once the replayed file is exhausted it keeps reporting until
// pending returns zero, so the file's last readings are not lost.
func logStatuses(ctx context.Context, updates <-chan tuning.Status, replayed <-chan struct{}, pending func() int) error {
	var poll <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-replayed:
			replayed = nil
			ticker := time.NewTicker(drainPoll)
			defer ticker.Stop()
			poll = ticker.C
		case <-poll:
			if pending() > 0 {
				continue
			}
			for {
				select {
				case st, ok := <-updates:
					if !ok {
						return nil
					}
					logStatus(st)
				default:
					logrus.WithField("function", "logStatuses").Info("Input file finished")
					return nil
				}
			}
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			logStatus(st)
		}
	}
}

func logStatus(st tuning.Status) {
	entry := logrus.WithFields(logrus.Fields{
		"target": st.TargetNote,
		"auto":   st.AutoMode,
		"active": st.Active,
	})
	if !st.Detected {
		entry.Info("No stable pitch")
		return
	}
	entry.WithFields(logrus.Fields{
		"note":      st.DetectedNote,
		"frequency": fmt.Sprintf("%.2f", st.DetectedFrequency),
		"cents":     fmt.Sprintf("%+.1f", st.Cents),
	}).Info("Stable pitch")
}
