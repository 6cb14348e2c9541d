// Package tuning owns the tuning session: target note, auto mode, the
// Idle/Active lifecycle and the fixed-cadence deviation graph.
package tuning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xlemi/guitartune/internal/audio"
	"github.com/0xlemi/guitartune/internal/pitch"
	"github.com/0xlemi/guitartune/internal/ring"
	"github.com/sirupsen/logrus"
)

// Options configures a Session.
type Options struct {
	Estimator   pitch.Estimator
	Conditioner *pitch.Conditioner // nil disables noise conditioning

	GraphInterval  time.Duration // graph sampler cadence
	MaxGraphPoints int
	HistorySize    int           // recent buffers retained
	FreshFor       time.Duration // how long a stable reading stays on the graph
	QueueSize      int           // buffers waiting for analysis
	DefaultNote    string

	// Now is the clock used for graph timestamps.
	Now func() time.Time
}

// DefaultOptions returns the standard session settings.
func DefaultOptions() Options {
	return Options{
		Estimator:      pitch.NewAutocorrEstimator(),
		Conditioner:    pitch.NewConditioner(),
		GraphInterval:  200 * time.Millisecond,
		MaxGraphPoints: 20,
		HistorySize:    5,
		FreshFor:       500 * time.Millisecond,
		QueueSize:      4,
		DefaultNote:    DefaultNote,
		Now:            time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Estimator == nil {
		o.Estimator = d.Estimator
	}
	if o.GraphInterval <= 0 {
		o.GraphInterval = d.GraphInterval
	}
	if o.MaxGraphPoints <= 0 {
		o.MaxGraphPoints = d.MaxGraphPoints
	}
	if o.HistorySize <= 0 {
		o.HistorySize = d.HistorySize
	}
	if o.FreshFor <= 0 {
		o.FreshFor = d.FreshFor
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.DefaultNote == "" {
		o.DefaultNote = d.DefaultNote
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Active        bool
	AutoMode      bool
	Target        Target
	Stable        float64
	HasStable     bool
	LastCandidate pitch.Candidate
	RMS           float64
	DB            float64
}

// run holds the goroutines and the analysis queue of one Active period.
type run struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queue   chan audio.Buffer
	pending atomic.Int32 // buffers queued or being analysed
}

// Session is the tuning state machine. All fields are guarded by mutex;
// the analysis and graph goroutines go through the same methods as
// external callers.
type Session struct {
	opts   Options
	source audio.Source
	live   atomic.Pointer[run] // nil while Idle

	mutex         sync.Mutex
	active        bool
	autoMode      bool
	target        Target
	generation    uint64 // bumped whenever in-flight results become stale
	stable        float64
	hasStable     bool
	stableAt      time.Time
	lastCandidate pitch.Candidate
	rms, db       float64
	graph         *ring.Buffer[GraphPoint]
	history       *ring.Buffer[audio.Buffer]
	subs          subscribers
	transport     Transport
	current       *run
}

// NewSession creates an Idle session reading from source. The target starts
// at the default note in manual mode.
func NewSession(source audio.Source, opts Options) *Session {
	opts = opts.withDefaults()
	target, _ := resolveTarget(opts.DefaultNote, DefaultNote)
	s := &Session{
		opts:    opts,
		source:  source,
		target:  target,
		graph:   ring.New[GraphPoint](opts.MaxGraphPoints),
		history: ring.New[audio.Buffer](opts.HistorySize),
	}
	source.OnSamples(s.enqueue)
	return s
}

// enqueue runs on the source's goroutine and never blocks it.
func (s *Session) enqueue(buf audio.Buffer) {
	r := s.live.Load()
	if r == nil {
		return
	}
	r.pending.Add(1)
	if !trySend(r.queue, buf) {
		r.pending.Add(-1)
		logrus.WithField("function", "Session.enqueue").Debug("Analysis busy, buffer dropped")
	}
}

// Start activates the session. It is a no-op when already Active. If the
// sample source cannot be started the session stays Idle and the error,
// wrapping audio.ErrSourceUnavailable, is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.active {
		return nil
	}

	if err := s.source.Start(); err != nil {
		if !errors.Is(err, audio.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", audio.ErrSourceUnavailable, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "Session.Start",
			"error":    err,
		}).Error("Sample source could not be started")
		return err
	}

	s.active = true
	s.generation++
	s.clearStableLocked()
	s.history.Clear()
	s.graph.Clear()

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, queue: make(chan audio.Buffer, s.opts.QueueSize)}
	s.current = r
	pipeline := pitch.NewPipeline(s.opts.Conditioner, s.opts.Estimator, pitch.NewStabilizer())

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		s.analyze(runCtx, r, pipeline)
	}()
	go func() {
		defer r.wg.Done()
		s.sample(runCtx)
	}()

	s.live.Store(r)
	s.subs.publish(s.statusLocked())

	logrus.WithFields(logrus.Fields{
		"function":    "Session.Start",
		"sample_rate": s.source.SampleRate(),
		"target":      s.target.Note,
		"auto":        s.autoMode,
	}).Info("Tuning session started")
	return nil
}

// Stop returns the session to Idle. It is a no-op when already Idle. Once
// Stop returns no analysis result from the stopped period is applied.
func (s *Session) Stop() {
	s.mutex.Lock()
	if !s.active {
		s.mutex.Unlock()
		return
	}

	s.live.Store(nil)
	s.active = false
	s.generation++
	if err := s.source.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Stop",
			"error":    err,
		}).Warn("Sample source did not stop cleanly")
	}
	r := s.current
	s.current = nil
	r.cancel()

	s.clearStableLocked()
	s.graph.Clear()
	s.subs.publish(s.statusLocked())
	s.mutex.Unlock()

	r.wg.Wait()
	logrus.WithField("function", "Session.Stop").Info("Tuning session stopped")
}

// SetTarget selects the target note by name. Unknown names fall back to the
// default note. The graph and the stable reading are cleared.
func (s *Session) SetTarget(name string) {
	target, ok := resolveTarget(name, s.opts.DefaultNote)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Session.SetTarget",
			"note":     name,
			"fallback": target.Note,
		}).Warn("Unknown note, using default target")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.target = target
	s.generation++
	s.clearStableLocked()
	s.graph.Clear()
	s.subs.publish(s.statusLocked())
}

// SetAutoMode switches automatic target selection. Turning it on leaves the
// target unresolved until a standard note is detected. Turning it off keeps
// a resolved target, or picks the note of the current detection, or the
// default note.
func (s *Session) SetAutoMode(enabled bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.autoMode == enabled {
		return
	}
	s.autoMode = enabled

	if enabled {
		s.target = Target{}
		s.graph.Clear()
	} else if !s.target.Resolved() {
		if n, ok := pitch.ClosestNote(s.stable); s.freshLocked(s.opts.Now()) && ok {
			s.target = targetFromNote(n)
		} else {
			s.target, _ = resolveTarget(s.opts.DefaultNote, DefaultNote)
		}
		s.graph.Clear()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Session.SetAutoMode",
		"auto":     enabled,
		"target":   s.target.Note,
	}).Info("Auto mode changed")
	s.subs.publish(s.statusLocked())
}

// AttachTransport sets the device receiving status updates. Pass nil to
// detach.
func (s *Session) AttachTransport(t Transport) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.transport = t
}

// Subscribe returns a channel receiving every published Status and a
// function that cancels the subscription and closes the channel.
func (s *Session) Subscribe() (<-chan Status, func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, ch := s.subs.add()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mutex.Lock()
			defer s.mutex.Unlock()
			s.subs.remove(id)
		})
	}
}

// Close stops the session and closes every subscription.
func (s *Session) Close() {
	s.Stop()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.subs.closeAll()
}

// Graph returns the graph points, most recent last.
func (s *Session) Graph() []GraphPoint {
	return s.graph.Snapshot()
}

// History returns the most recently analysed buffers, oldest first.
func (s *Session) History() []audio.Buffer {
	return s.history.Snapshot()
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.statusLocked()
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Snapshot{
		Active:        s.active,
		AutoMode:      s.autoMode,
		Target:        s.target,
		Stable:        s.stable,
		HasStable:     s.hasStable,
		LastCandidate: s.lastCandidate,
		RMS:           s.rms,
		DB:            s.db,
	}
}

// IsActive reports whether the session is Active.
func (s *Session) IsActive() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.active
}

// Pending returns the number of buffers accepted from the source that have
// not finished analysis. It is zero while Idle.
func (s *Session) Pending() int {
	r := s.live.Load()
	if r == nil {
		return 0
	}
	return int(r.pending.Load())
}

// GraphInterval is the sampler cadence.
func (s *Session) GraphInterval() time.Duration {
	return s.opts.GraphInterval
}

// SampleGraph appends one point to the graph and returns it. It is called by
// the sampler goroutine on every tick and does nothing while Idle.
func (s *Session) SampleGraph() (GraphPoint, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.active {
		return GraphPoint{}, false
	}

	now := s.opts.Now()
	point := emptyPoint(now)
	if s.freshLocked(now) && s.target.Resolved() {
		point = centsPoint(now, pitch.CentsDeviation(s.stable, s.target.Frequency))
	}
	s.graph.Push(point)
	return point, true
}

func (s *Session) sample(ctx context.Context) {
	ticker := time.NewTicker(s.opts.GraphInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SampleGraph()
		}
	}
}

// analyze processes r's queue until r is cancelled. A buffer dequeued after
// cancellation was captured by a stopped run and is dropped unprocessed.
func (s *Session) analyze(ctx context.Context, r *run, pipeline *pitch.Pipeline) {
	var seen uint64
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-r.queue:
			if ctx.Err() != nil {
				r.pending.Add(-1)
				return
			}
			gen := s.currentGeneration()
			if gen != seen {
				pipeline.Reset()
				seen = gen
			}
			result := pipeline.Process(buf)
			s.apply(r, gen, buf, result)
			r.pending.Add(-1)
		}
	}
}

func (s *Session) currentGeneration() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.generation
}

// apply records one analysis result. Results from a run other than the
// current one, or computed under an older generation, are discarded.
func (s *Session) apply(r *run, gen uint64, buf audio.Buffer, result pitch.Result) {
	s.mutex.Lock()
	if r != s.current || gen != s.generation || !s.active {
		s.mutex.Unlock()
		logrus.WithField("function", "Session.apply").Debug("Stale analysis result discarded")
		return
	}

	s.history.Push(buf)
	s.rms, s.db = buf.Level()
	changed := false
	switch {
	case result.IsStable:
		changed = !s.hasStable || s.stable != result.Stable
		s.stable = result.Stable
		s.hasStable = true
		s.stableAt = s.opts.Now()
		if s.autoMode && s.autoSelectLocked() {
			changed = true
		}
	case s.hasStable:
		s.clearStableLocked()
		changed = true
	}
	s.lastCandidate = result.Candidate

	var (
		status    Status
		transport Transport
	)
	if changed {
		status = s.statusLocked()
		s.subs.publish(status)
		transport = s.transport
	}
	s.mutex.Unlock()

	if transport != nil {
		sendStatus(transport, status)
	}
}

// autoSelectLocked adopts the detected note as target when it belongs to
// the standard tuning and differs from the current target. It reports
// whether the target changed.
func (s *Session) autoSelectLocked() bool {
	n, ok := pitch.ClosestNote(s.stable)
	if !ok || !IsStandard(n.Name) || n.Name == s.target.Note {
		return false
	}
	s.target = targetFromNote(n)
	s.graph.Clear()

	logrus.WithFields(logrus.Fields{
		"function":  "Session.autoSelect",
		"target":    n.Name,
		"frequency": s.stable,
	}).Info("Auto mode selected target")
	return true
}

func (s *Session) freshLocked(now time.Time) bool {
	return s.hasStable && now.Sub(s.stableAt) <= s.opts.FreshFor
}

func (s *Session) clearStableLocked() {
	s.stable = 0
	s.hasStable = false
	s.stableAt = time.Time{}
	s.lastCandidate = pitch.Candidate{}
}

func (s *Session) statusLocked() Status {
	st := Status{
		TargetNote:      s.target.Note,
		TargetFrequency: s.target.Frequency,
		AutoMode:        s.autoMode,
		Active:          s.active,
	}
	if !s.hasStable {
		return st
	}
	st.Detected = true
	st.DetectedFrequency = s.stable
	if n, ok := pitch.ClosestNote(s.stable); ok {
		st.DetectedNote = n.Name
	}
	if s.target.Resolved() {
		st.Cents = pitch.CentsDeviation(s.stable, s.target.Frequency)
	}
	return st
}

func sendStatus(t Transport, st Status) {
	if !t.Connected() {
		return
	}
	if err := t.SendStatus(st); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendStatus",
			"error":    err,
		}).Warn("Transport rejected status")
	}
}
