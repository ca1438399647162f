// Package guard is the engine every surface talks to. It owns the
// single-operation gate and the review state machine, and exposes the three
// operations: check, revert and accept.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mcpguard/internal/baseline"
	"mcpguard/internal/config"
	"mcpguard/internal/detector"
	"mcpguard/internal/logging"
	"mcpguard/internal/model"
	"mcpguard/internal/resolver"
)

var (
	// ErrBusy is returned under the reject policy while another operation holds
	// the gate.
	ErrBusy = errors.New("another operation is in progress")
	// ErrStaleChangeSet means the Change Set must be recomputed before it can be
	// applied.
	ErrStaleChangeSet = errors.New("change set is stale, check again")
)

// State is the engine's position in the review cycle.
type State int

const (
	StateIdle State = iota
	StateDetecting
	StateClean
	StateReviewing
	StateReverting
	StateAccepting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateClean:
		return "clean"
	case StateReviewing:
		return "reviewing"
	case StateReverting:
		return "reverting"
	case StateAccepting:
		return "accepting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Detector produces Change Sets.
type Detector interface {
	Detect() (*model.ChangeSet, error)
	Resolve() (*resolver.Result, error)
	ConfigPath() string
}

// Transactions applies Change Sets.
type Transactions interface {
	Revert(cs *model.ChangeSet) error
	Accept(cs *model.ChangeSet) error
}

var (
	_ Detector     = (*detector.Detector)(nil)
	_ Transactions = (*baseline.Manager)(nil)
)

// Options tune the engine.
type Options struct {
	// BusyPolicy is config.BusyPolicyQueue or config.BusyPolicyReject.
	BusyPolicy string
	// MaxAge rejects Change Sets older than this. Zero disables the check.
	MaxAge time.Duration
}

// Engine serialises detection and transactions.
type Engine struct {
	detector     Detector
	transactions Transactions
	opts         Options
	logger       *logging.AppLogger
	now          func() time.Time

	gate chan struct{}

	mu        sync.Mutex
	state     State
	lastCheck time.Time
	failed    map[string]struct{}
}

func New(det Detector, tx Transactions, opts Options, logger *logging.AppLogger) *Engine {
	if opts.BusyPolicy == "" {
		opts.BusyPolicy = config.BusyPolicyQueue
	}
	return &Engine{
		detector:     det,
		transactions: tx,
		opts:         opts,
		logger:       logging.OrDefault(logger),
		now:          time.Now,
		gate:         make(chan struct{}, 1),
		failed:       make(map[string]struct{}),
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.opts.BusyPolicy == config.BusyPolicyReject {
		select {
		case e.gate <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}

	select {
	case e.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.gate
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	from := e.state
	e.state = s
	e.mu.Unlock()
	if from != s {
		e.logger.LogStateTransition("guard", from.String(), s.String())
	}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CheckChanges runs one detection pass. An empty Change Set means clean.
func (e *Engine) CheckChanges(ctx context.Context) (*model.ChangeSet, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	return e.detect()
}

// detect must be called with the gate held.
func (e *Engine) detect() (*model.ChangeSet, error) {
	e.setState(StateDetecting)
	cs, err := e.detector.Detect()
	if err != nil {
		e.setState(StateIdle)
		return nil, err
	}

	e.mu.Lock()
	e.lastCheck = cs.CreatedAt
	e.mu.Unlock()

	if cs.Empty() {
		e.setState(StateClean)
	} else {
		e.setState(StateReviewing)
	}
	return cs, nil
}

// RevertChanges restores every entry of cs to its baseline.
func (e *Engine) RevertChanges(ctx context.Context, cs *model.ChangeSet) error {
	return e.apply(ctx, cs, StateReverting, e.transactions.Revert)
}

// AcceptChanges promotes the captured content of every entry of cs to the
// baseline.
func (e *Engine) AcceptChanges(ctx context.Context, cs *model.ChangeSet) error {
	return e.apply(ctx, cs, StateAccepting, e.transactions.Accept)
}

// AcceptAll detects and accepts the full current Change Set without releasing
// the gate in between. It returns the accepted set.
func (e *Engine) AcceptAll(ctx context.Context) (*model.ChangeSet, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	cs, err := e.detect()
	if err != nil {
		return nil, err
	}

	e.setState(StateAccepting)
	defer e.setState(StateIdle)
	if err := e.transactions.Accept(cs); err != nil {
		e.markFailed(cs)
		return cs, err
	}
	return cs, nil
}

func (e *Engine) apply(ctx context.Context, cs *model.ChangeSet, state State, tx func(*model.ChangeSet) error) error {
	if cs.Empty() {
		return nil
	}
	if err := e.checkFresh(cs); err != nil {
		return err
	}

	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	e.setState(state)
	defer e.setState(StateIdle)

	if err := tx(cs); err != nil {
		e.markFailed(cs)
		return err
	}
	return nil
}

// checkFresh rejects Change Sets that are too old or whose earlier
// transaction partially failed. Sets without an id or timestamp only get the
// per-path revalidation.
func (e *Engine) checkFresh(cs *model.ChangeSet) error {
	if cs.ID != "" {
		e.mu.Lock()
		_, failed := e.failed[cs.ID]
		e.mu.Unlock()
		if failed {
			return fmt.Errorf("%w: an earlier transaction on %s partially failed", ErrStaleChangeSet, cs.ID)
		}
	}
	if e.opts.MaxAge > 0 && !cs.CreatedAt.IsZero() {
		if age := e.now().Sub(cs.CreatedAt); age > e.opts.MaxAge {
			return fmt.Errorf("%w: computed %s ago", ErrStaleChangeSet, age.Round(time.Second))
		}
	}
	return nil
}

func (e *Engine) markFailed(cs *model.ChangeSet) {
	if cs.ID == "" {
		return
	}
	e.mu.Lock()
	e.failed[cs.ID] = struct{}{}
	e.mu.Unlock()
}

// Status describes the engine and the configuration it guards.
type Status struct {
	State      string    `json:"state"`
	ConfigPath string    `json:"config_path"`
	Summary    string    `json:"summary"`
	Tracked    []string  `json:"tracked"`
	LastCheck  time.Time `json:"last_check,omitempty"`
}

// Status resolves the configuration without reading any tracked file. It does
// not take the gate.
func (e *Engine) Status() (*Status, error) {
	e.mu.Lock()
	st := &Status{
		State:      e.state.String(),
		ConfigPath: e.detector.ConfigPath(),
		LastCheck:  e.lastCheck,
	}
	e.mu.Unlock()

	res, err := e.detector.Resolve()
	if err != nil {
		return st, err
	}
	st.Summary = resolver.Summary(res.Servers)
	st.Tracked = res.Paths()
	return st, nil
}
