// Package workspace drives one task screen: inputs, the usage gate, the
// running/succeeded/failed lifecycle and the result.
package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"
	"atsbeaters/internal/tasks"
)

// State of a workspace
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Sentinels for errors.Is
var (
	ErrGateBlocked = apperrors.NewValidationError(apperrors.ErrCodeGateBlocked,
		"no credits left on the free tier; upgrade to continue", nil)
	ErrBusy = apperrors.NewValidationError(apperrors.ErrCodeBusy,
		"a request is already running", nil)
)

// UserSource yields the logged-in user, or nil
type UserSource interface {
	Current(ctx context.Context) (*session.User, error)
}

// Observer is told about gate blocks and finished runs
type Observer interface {
	GateBlocked(ctx context.Context, task string)
	TaskFinished(ctx context.Context, task string, state State, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) GateBlocked(context.Context, string)                        {}
func (nopObserver) TaskFinished(context.Context, string, State, time.Duration) {}

// Option configures a Workspace or PhotoEditor
type Option func(*options)

type options struct {
	observer Observer
	now      func() time.Time
	fallback bool
	logger   *apperrors.Logger
}

// WithObserver reports gate and run events to o
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithMalformedFallback makes a malformed structured response succeed with
// the empty result for the task's shape. The substitution is logged to
// logger when it is not nil.
func WithMalformedFallback(logger *apperrors.Logger) Option {
	return func(opts *options) {
		opts.fallback = true
		opts.logger = logger
	}
}

// recoverMalformed returns the empty result for shape when err is a
// malformed response and the fallback is enabled
func (o options) recoverMalformed(task string, shape results.Shape, err error) (results.Result, bool) {
	if !o.fallback || !errors.Is(err, results.ErrMalformedResponse) {
		return nil, false
	}
	if o.logger != nil {
		o.logger.Warn("Malformed AI response, using empty result", "task", task, "shape", string(shape), "error", err)
	}
	return results.Empty(shape), true
}

func buildOptions(opts []Option) options {
	o := options{observer: nopObserver{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Snapshot is a consistent copy of a workspace
type Snapshot struct {
	Task   string
	Inputs [2]string
	State  State
	Result results.Result
	Err    error
}

// Workspace is the state of one text task screen. It is safe for concurrent use.
type Workspace struct {
	def     tasks.Definition
	cfg     *config.Config
	gateway ai.Gateway
	users   UserSource
	opts    options

	mu     sync.Mutex
	inputs [2]string
	state  State
	result results.Result
	err    error
	gen    uint64
}

// New creates an idle workspace for def
func New(def tasks.Definition, cfg *config.Config, gateway ai.Gateway, users UserSource, opts ...Option) *Workspace {
	return &Workspace{
		def:     def,
		cfg:     cfg,
		gateway: gateway,
		users:   users,
		opts:    buildOptions(opts),
		state:   StateIdle,
	}
}

// SetInput sets input 0 or 1. Out-of-range indexes are ignored.
func (w *Workspace) SetInput(i int, value string) {
	if i < 0 || i > 1 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs[i] = value
}

// Snapshot returns the current state
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{Task: w.def.ID, Inputs: w.inputs, State: w.state, Result: w.result, Err: w.err}
}

// State returns the lifecycle state
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reset clears inputs and result. An in-flight run finishes but its outcome
// is dropped.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs = [2]string{}
	w.state = StateIdle
	w.result = nil
	w.err = nil
	w.gen++
}

// Submit runs the task with the current inputs. A gated user gets
// ErrGateBlocked and the state is left unchanged. Credits are not spent.
func (w *Workspace) Submit(ctx context.Context) (results.Result, error) {
	w.mu.Lock()
	if w.state == StateRunning {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	inputs := w.inputs
	w.mu.Unlock()

	if err := checkGate(ctx, w.users, w.def.ID, w.opts.observer); err != nil {
		return nil, err
	}

	req, err := ai.BuildTextRequest(w.cfg, w.def, trimInputs(w.def, inputs)...)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.state == StateRunning {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	w.state = StateRunning
	w.result = nil
	w.err = nil
	gen := w.gen
	w.mu.Unlock()

	start := w.opts.now()
	out, err := w.gateway.RunTextTask(ctx, req)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if empty, ok := w.opts.recoverMalformed(w.def.ID, req.Shape, err); ok {
		out, err = ai.Output{Result: empty}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	final := StateSucceeded
	if err != nil {
		final = StateFailed
	}
	w.opts.observer.TaskFinished(ctx, w.def.ID, final, w.opts.now().Sub(start))

	if gen != w.gen {
		// reset while running
		return out.Result, err
	}
	w.state = final
	if err != nil {
		w.err = err
		return nil, err
	}
	w.result = out.Result
	return out.Result, nil
}

// SaveToHistory stores the first input and the last successful result
func (w *Workspace) SaveToHistory(ctx context.Context, sess *session.Session) (*session.HistoryEntry, error) {
	snap := w.Snapshot()
	if snap.State != StateSucceeded || snap.Result == nil {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest, "nothing to save yet", nil)
	}
	return sess.SaveToHistory(ctx, snap.Task, snap.Inputs[0], snap.Result)
}

func trimInputs(def tasks.Definition, inputs [2]string) []string {
	return inputs[:len(def.Inputs)]
}

// checkGate blocks free users with no credits. No user means no gate.
func checkGate(ctx context.Context, users UserSource, task string, observer Observer) error {
	if users == nil {
		return nil
	}
	u, err := users.Current(ctx)
	if err != nil {
		return err
	}
	if u.Gated() {
		observer.GateBlocked(ctx, task)
		return ErrGateBlocked
	}
	return nil
}
