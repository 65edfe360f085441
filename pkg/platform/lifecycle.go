package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// hook is a named start or stop step.
type hook struct {
	name string
	fn   func(context.Context) error
}

// Lifecycle starts components in registration order and stops them in
// reverse.
type Lifecycle struct {
	mu     sync.Mutex
	logger *slog.Logger

	starts []hook
	stops  []hook

	started bool
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{logger: logger}
}

// OnStart registers a step to run on startup.
func (l *Lifecycle) OnStart(name string, fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, hook{name: name, fn: fn})
}

// OnStop registers a step to run on shutdown.
func (l *Lifecycle) OnStop(name string, fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops = append(l.stops, hook{name: name, fn: fn})
}

// RegisterCloser closes c on shutdown.
func (l *Lifecycle) RegisterCloser(name string, c interface{ Close() error }) {
	l.OnStop(name, func(context.Context) error {
		return c.Close()
	})
}

// Start runs the start steps. If one fails, every stop step is run before
// the error is returned.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.New("lifecycle already started")
	}

	for _, h := range l.starts {
		if err := h.fn(ctx); err != nil {
			l.stopAll(ctx)
			return fmt.Errorf("starting %s: %w", h.name, err)
		}
		l.logger.Debug("started component", "component", h.name)
	}

	l.started = true
	return nil
}

// Stop runs the stop steps in reverse order, collecting every error.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}
	l.started = false
	return l.stopAll(ctx)
}

func (l *Lifecycle) stopAll(ctx context.Context) error {
	var errs []error
	for i := len(l.stops) - 1; i >= 0; i-- {
		h := l.stops[i]
		if err := h.fn(ctx); err != nil {
			l.logger.Warn("stopping component failed", "component", h.name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

// IsStarted returns whether the lifecycle has been started.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}
