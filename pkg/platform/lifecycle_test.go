package platform

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLifecycle_StartAndStop(t *testing.T) {
	lc := NewLifecycle(nil)

	var started, stopped bool
	lc.OnStart("worker", func(_ context.Context) error {
		started = true
		return nil
	})
	lc.OnStop("worker", func(_ context.Context) error {
		stopped = true
		return nil
	})

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !started {
		t.Error("start hook not called")
	}
	if !lc.IsStarted() {
		t.Error("IsStarted() = false after Start()")
	}

	if err := lc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !stopped {
		t.Error("stop hook not called")
	}
	if lc.IsStarted() {
		t.Error("IsStarted() = true after Stop()")
	}
}

func TestLifecycle_StartAlreadyStarted(t *testing.T) {
	lc := NewLifecycle(nil)
	_ = lc.Start(context.Background())

	if err := lc.Start(context.Background()); err == nil {
		t.Error("Start() expected error for already started")
	}
}

func TestLifecycle_StopNotStarted(t *testing.T) {
	lc := NewLifecycle(nil)
	called := false
	lc.OnStop("db", func(context.Context) error {
		called = true
		return nil
	})
	if err := lc.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v, expected nil for not started", err)
	}
	if called {
		t.Error("stop hook ran although the lifecycle never started")
	}
}

func TestLifecycle_StartRollbackOnError(t *testing.T) {
	lc := NewLifecycle(nil)

	var calls []string
	lc.OnStart("first", func(_ context.Context) error {
		calls = append(calls, "start1")
		return nil
	})
	lc.OnStop("first", func(_ context.Context) error {
		calls = append(calls, "stop1")
		return nil
	})
	lc.OnStart("second", func(_ context.Context) error {
		calls = append(calls, "start2")
		return errors.New("boom")
	})
	lc.OnStop("second", func(_ context.Context) error {
		calls = append(calls, "stop2")
		return nil
	})

	err := lc.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if !strings.Contains(err.Error(), "starting second") {
		t.Errorf("error %q does not name the failing component", err)
	}
	want := []string{"start1", "start2", "stop2", "stop1"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if lc.IsStarted() {
		t.Error("IsStarted() = true after failed Start()")
	}
}

func TestLifecycle_StopReverseOrderCollectsErrors(t *testing.T) {
	lc := NewLifecycle(nil)

	var order []string
	for _, name := range []string{"database", "cache", "notifier"} {
		lc.OnStop(name, func(context.Context) error {
			order = append(order, name)
			if name == "cache" {
				return errors.New("cache close failed")
			}
			return nil
		})
	}
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := lc.Stop(context.Background())
	if err == nil || !strings.Contains(err.Error(), "stopping cache") {
		t.Errorf("Stop() error = %v, want the cache failure", err)
	}
	want := []string{"notifier", "cache", "database"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("stop order = %v, want %v", order, want)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestLifecycle_RegisterCloser(t *testing.T) {
	lc := NewLifecycle(nil)
	closed := 0
	lc.RegisterCloser("conn", closerFunc(func() error {
		closed++
		return nil
	}))

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := lc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if closed != 1 {
		t.Errorf("closed = %d, want 1", closed)
	}
}
