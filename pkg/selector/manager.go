package selector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/menta2k/chart-qa/pkg/types"
)

// DefaultTimeout bounds a selection when the caller's context has no deadline
const DefaultTimeout = 30 * time.Second

var errSuperseded = errors.New("superseded")

// Config holds configuration for the selection manager
type Config struct {
	Threshold float64
	Timeout   time.Duration
}

// Manager owns the single active overlay. Starting a selection tears down
// the previous one first.
type Manager struct {
	config Config

	startMu sync.Mutex
	mu      sync.Mutex
	active  *run
}

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Selection is an in-flight asynchronous selection
type Selection struct {
	done chan types.SelectionResult
	err  error
}

// Done delivers exactly one result and is then closed
func (s *Selection) Done() <-chan types.SelectionResult {
	return s.done
}

// Err reports a host failure. Only valid once Done has delivered.
func (s *Selection) Err() error {
	return s.err
}

// NewManager creates a Manager with default configuration
func NewManager() *Manager {
	return NewManagerWithConfig(Config{Threshold: DefaultThreshold, Timeout: DefaultTimeout})
}

// NewManagerWithConfig creates a Manager with custom configuration
func NewManagerWithConfig(config Config) *Manager {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	return &Manager{config: config}
}

// Select runs one selection gesture on host and blocks until it resolves.
// The overlay is detached before Select returns, on every path. A panic in
// the host or in a transition is re-raised after teardown.
func (m *Manager) Select(ctx context.Context, host Host) (types.SelectionResult, error) {
	r, ctx, cancel := m.begin(ctx)
	defer cancel()
	defer m.end(r)
	return m.drive(ctx, host)
}

// Start is the asynchronous form of Select. The previous selection, if any,
// is torn down before Start returns.
func (m *Manager) Start(ctx context.Context, host Host) *Selection {
	r, ctx, cancel := m.begin(ctx)
	s := &Selection{done: make(chan types.SelectionResult, 1)}

	go func() {
		defer close(s.done)
		defer cancel()
		defer m.end(r)
		defer func() {
			if p := recover(); p != nil {
				s.err = fmt.Errorf("selector panic: %v", p)
				s.done <- types.Cancelled(types.ReasonTimeout)
			}
		}()

		res, err := m.drive(ctx, host)
		s.err = err
		s.done <- res
	}()

	return s
}

// Active reports whether a selection is currently running
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

func (m *Manager) begin(ctx context.Context) (*run, context.Context, func()) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	prev := m.active
	m.mu.Unlock()
	if prev != nil {
		prev.cancel(errSuperseded)
		<-prev.done
	}

	var cancelTimeout context.CancelFunc = func() {}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && m.config.Timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(ctx, m.config.Timeout)
	}
	ctx, cancelCause := context.WithCancelCause(ctx)

	r := &run{cancel: cancelCause, done: make(chan struct{})}
	m.mu.Lock()
	m.active = r
	m.mu.Unlock()

	return r, ctx, func() {
		cancelCause(nil)
		cancelTimeout()
	}
}

func (m *Manager) end(r *run) {
	m.mu.Lock()
	if m.active == r {
		m.active = nil
	}
	m.mu.Unlock()
	close(r.done)
}

func (m *Manager) drive(ctx context.Context, host Host) (types.SelectionResult, error) {
	overlay, err := host.Attach(ctx)
	if err != nil {
		return types.Cancelled(reasonFor(ctx)), fmt.Errorf("failed to attach overlay: %w", err)
	}

	var once sync.Once
	detach := func() {
		once.Do(func() {
			if err := overlay.Detach(); err != nil {
				log.Printf("selector: detach failed: %v", err)
			}
		})
	}
	defer func() {
		if p := recover(); p != nil {
			detach()
			panic(p)
		}
	}()

	machine := NewMachine(overlay.Viewport(), m.config.Threshold)
	events := overlay.Events()

	for {
		select {
		case <-ctx.Done():
			res := types.Cancelled(reasonFor(ctx))
			detach()
			return res, nil

		case ev, ok := <-events:
			if !ok {
				detach()
				return types.Cancelled(types.ReasonTimeout), nil
			}
			out := machine.Step(ev)
			if out.Live != nil {
				overlay.Render(*out.Live)
			}
			if out.Result != nil {
				detach()
				return *out.Result, nil
			}
		}
	}
}

func reasonFor(ctx context.Context) types.CancelReason {
	if errors.Is(context.Cause(ctx), errSuperseded) {
		return types.ReasonSuperseded
	}
	return types.ReasonTimeout
}
