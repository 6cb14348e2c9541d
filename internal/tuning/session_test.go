package tuning

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/0xlemi/guitartune/internal/audio"
	"github.com/0xlemi/guitartune/internal/pitch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate   = 44100
	testWindow = 2048
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []Status
}

func (r *recordingTransport) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *recordingTransport) SendStatus(st Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, st)
	return nil
}

func (r *recordingTransport) Sent() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.sent...)
}

func sine(freq float64) []float32 {
	samples := make([]float32, testWindow)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return samples
}

// testOptions disables the background sampler so tests drive SampleGraph.
func testOptions() Options {
	opts := DefaultOptions()
	opts.GraphInterval = time.Hour
	opts.QueueSize = 32
	return opts
}

func newTestSession(t *testing.T, opts Options) (*Session, *audio.ManualSource) {
	t.Helper()
	src := audio.NewManualSource(testRate)
	s := NewSession(src, opts)
	t.Cleanup(s.Close)
	return s, src
}

func push(t *testing.T, src *audio.ManualSource, samples []float32, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, src.Push(samples))
	}
}

func waitStable(t *testing.T, s *Session) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().HasStable
	}, 5*time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func TestNewSessionDefaults(t *testing.T) {
	s, _ := newTestSession(t, testOptions())

	snap := s.Snapshot()
	assert.False(t, snap.Active)
	assert.False(t, snap.AutoMode)
	assert.Equal(t, "E2", snap.Target.Note)
	assert.InDelta(t, 82.41, snap.Target.Frequency, 0.01)
	assert.Empty(t, s.Graph())
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	before := s.Snapshot()

	s.Stop()
	s.Stop()

	assert.Equal(t, before, s.Snapshot())
	assert.False(t, src.IsCapturing())
}

func TestStartTwiceIsNoop(t *testing.T) {
	s, src := newTestSession(t, testOptions())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	assert.True(t, s.IsActive())
	assert.True(t, src.IsCapturing())

	s.Stop()
	assert.False(t, s.IsActive())
	assert.False(t, src.IsCapturing())
}

func TestStartFailsWhenSourceUnavailable(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	src.FailStartWith(errors.New("no microphone"))

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, audio.ErrSourceUnavailable)
	assert.False(t, s.IsActive())

	_, ok := s.SampleGraph()
	assert.False(t, ok)
}

func TestGraphKeepsNewestPoints(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	opts := testOptions()
	opts.Now = clock.Now
	s, _ := newTestSession(t, opts)
	require.NoError(t, s.Start(context.Background()))

	var ticks []time.Time
	for i := 0; i < opts.MaxGraphPoints+5; i++ {
		clock.Advance(opts.GraphInterval)
		p, ok := s.SampleGraph()
		require.True(t, ok)
		assert.Equal(t, TierEmpty, p.Tier)
		assert.False(t, p.HasCents)
		ticks = append(ticks, p.Time)
	}

	graph := s.Graph()
	require.Len(t, graph, opts.MaxGraphPoints)
	for i, p := range graph {
		assert.Equal(t, ticks[i+5], p.Time)
	}
	for _, early := range ticks[:5] {
		for _, p := range graph {
			assert.NotEqual(t, early, p.Time)
		}
	}
}

func TestSamplerTicksInBackground(t *testing.T) {
	opts := testOptions()
	opts.GraphInterval = 5 * time.Millisecond
	s, _ := newTestSession(t, opts)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(s.Graph()) >= 3
	}, 5*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Empty(t, s.Graph())
}

func TestStableDetectionPublishesStatus(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	s.SetTarget("A2")
	updates, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Start(context.Background()))
	push(t, src, sine(110), 3)

	var got Status
	require.Eventually(t, func() bool {
		select {
		case st := <-updates:
			got = st
			return st.Detected
		default:
			return false
		}
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, "A2", got.DetectedNote)
	assert.InEpsilon(t, 110.0, got.DetectedFrequency, 0.05)
	assert.Equal(t, "A2", got.TargetNote)
	assert.InDelta(t, 110.0, got.TargetFrequency, 1e-9)
	assert.InDelta(t, pitch.CentsDeviation(got.DetectedFrequency, 110), got.Cents, 1e-9)
	assert.True(t, got.Active)

	p, ok := s.SampleGraph()
	require.True(t, ok)
	assert.True(t, p.HasCents)
	assert.InDelta(t, got.Cents, p.Cents, 1e-9)
	assert.Equal(t, TierFor(got.Cents), p.Tier)
}

func TestSilenceClearsDetection(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(110), 3)
	waitStable(t, s)

	push(t, src, make([]float32, testWindow), 1)
	require.Eventually(t, func() bool {
		return !s.Snapshot().HasStable
	}, 5*time.Second, 5*time.Millisecond)

	p, ok := s.SampleGraph()
	require.True(t, ok)
	assert.Equal(t, TierEmpty, p.Tier)
	assert.False(t, s.Status().Detected)
}

func TestStaleDetectionIsNotGraphed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	opts := testOptions()
	opts.Now = clock.Now
	s, src := newTestSession(t, opts)
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(110), 3)
	waitStable(t, s)

	clock.Advance(opts.FreshFor + time.Millisecond)
	p, ok := s.SampleGraph()
	require.True(t, ok)
	assert.Equal(t, TierEmpty, p.Tier)
}

func TestSetTargetClearsGraphAndDetection(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(110), 3)
	waitStable(t, s)
	s.SampleGraph()
	s.SampleGraph()
	require.Len(t, s.Graph(), 2)

	s.SetTarget("D3")

	snap := s.Snapshot()
	assert.Equal(t, "D3", snap.Target.Note)
	assert.False(t, snap.HasStable)
	assert.Empty(t, s.Graph())
}

func TestSetTargetUnknownFallsBack(t *testing.T) {
	s, _ := newTestSession(t, testOptions())
	s.SetTarget("A4")
	s.SetTarget("not-a-note")

	assert.Equal(t, DefaultNote, s.Snapshot().Target.Note)
}

func TestAutoModeAdoptsStandardNote(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	s.SetAutoMode(true)
	assert.False(t, s.Snapshot().Target.Resolved())

	require.NoError(t, s.Start(context.Background()))
	push(t, src, sine(110), 3)

	require.Eventually(t, func() bool {
		return s.Snapshot().Target.Note == "A2"
	}, 5*time.Second, 5*time.Millisecond)
	assert.True(t, s.Snapshot().AutoMode)
}

func TestAutoModeIgnoresNonStandardNote(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	s.SetAutoMode(true)
	require.NoError(t, s.Start(context.Background()))

	// 440 Hz maps to A4, which is not an open string.
	push(t, src, sine(440), 3)
	snap := waitStable(t, s)

	assert.False(t, snap.Target.Resolved())
	assert.Equal(t, "A4", s.Status().DetectedNote)
}

func TestAutoModeOffFallsBackToDefault(t *testing.T) {
	s, _ := newTestSession(t, testOptions())
	s.SetTarget("G3")
	s.SetAutoMode(true)
	s.SetAutoMode(false)

	snap := s.Snapshot()
	assert.False(t, snap.AutoMode)
	assert.Equal(t, DefaultNote, snap.Target.Note)
}

func TestAutoModeOffUsesDetection(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	s.SetAutoMode(true)
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(440), 3)
	waitStable(t, s)
	s.SetAutoMode(false)

	assert.Equal(t, "A4", s.Snapshot().Target.Note)
}

func TestHistoryIsBounded(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(220), 8)
	require.Eventually(t, func() bool {
		return len(s.History()) == 5
	}, 5*time.Second, 5*time.Millisecond)

	for _, b := range s.History() {
		assert.Equal(t, testWindow, b.Len())
	}
}

func TestResultsAfterStopAreDiscarded(t *testing.T) {
	s, _ := newTestSession(t, testOptions())
	require.NoError(t, s.Start(context.Background()))
	r, gen := s.live.Load(), s.currentGeneration()
	s.Stop()

	buf := audio.Buffer{Samples: sine(110), SampleRate: testRate}
	s.apply(r, gen, buf, pitch.Result{
		Candidate: pitch.Candidate{Frequency: 110, Valid: true},
		Stable:    110,
		IsStable:  true,
	})

	snap := s.Snapshot()
	assert.False(t, snap.HasStable)
	assert.Empty(t, s.History())
}

// gatedEstimator blocks its first Estimate call until released.
type gatedEstimator struct {
	pitch.Estimator
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEstimator) Estimate(b audio.Buffer) pitch.Candidate {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Estimator.Estimate(b)
}

func TestQueuedBufferNotAppliedAfterRestart(t *testing.T) {
	est := &gatedEstimator{
		Estimator: pitch.NewAutocorrEstimator(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	opts := testOptions()
	opts.Estimator = est
	s, src := newTestSession(t, opts)
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(110), 1)
	<-est.entered
	const marker = 999
	push(t, src, make([]float32, marker), 1)
	assert.Equal(t, 2, s.Pending())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return !s.IsActive() }, 5*time.Second, time.Millisecond)
	require.NoError(t, s.Start(context.Background()))

	close(est.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	for _, b := range s.History() {
		assert.NotEqual(t, marker, b.Len(), "buffer from the stopped run was applied")
	}
	assert.Zero(t, s.Pending())
}

func TestPendingDrainsToZero(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	assert.Zero(t, s.Pending())
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(110), 4)
	require.Eventually(t, func() bool {
		return s.Pending() == 0 && len(s.History()) == 4
	}, 5*time.Second, 5*time.Millisecond)
}

func TestTransportReceivesStableStatus(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	connected := &recordingTransport{connected: true}
	s.AttachTransport(connected)
	require.NoError(t, s.Start(context.Background()))

	push(t, src, sine(110), 3)
	require.Eventually(t, func() bool {
		return len(connected.Sent()) > 0
	}, 5*time.Second, 5*time.Millisecond)
	assert.True(t, connected.Sent()[0].Detected)

	offline := &recordingTransport{}
	s.AttachTransport(offline)
	push(t, src, make([]float32, testWindow), 1)
	require.Eventually(t, func() bool {
		return !s.Snapshot().HasStable
	}, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, offline.Sent())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s, _ := newTestSession(t, testOptions())
	updates, cancel := s.Subscribe()

	s.SetTarget("B3")
	st, ok := <-updates
	require.True(t, ok)
	assert.Equal(t, "B3", st.TargetNote)

	cancel()
	cancel()
	_, ok = <-updates
	assert.False(t, ok)
}

func TestAutoModeAdoptionPublishesTarget(t *testing.T) {
	s, src := newTestSession(t, testOptions())
	s.SetAutoMode(true)
	updates, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Start(context.Background()))
	push(t, src, sine(110), 3)

	require.Eventually(t, func() bool {
		select {
		case st := <-updates:
			return st.Detected && st.TargetNote == "A2"
		default:
			return false
		}
	}, 5*time.Second, time.Millisecond)
}
