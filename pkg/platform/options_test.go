package platform

import (
	"log/slog"
	"testing"

	"github.com/txn2/config-service/pkg/cache"
	"github.com/txn2/config-service/pkg/configstore/memory"
	"github.com/txn2/config-service/pkg/notify"
)

func TestWithConfig(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Name: "test"}}
	opts := &Options{}
	WithConfig(cfg)(opts)

	if opts.Config != cfg {
		t.Error("WithConfig did not set Config")
	}
}

func TestWithDB(t *testing.T) {
	opts := &Options{}
	WithDB(nil)(opts)

	if opts.DB != nil {
		t.Error("WithDB should set nil DB")
	}
}

func TestWithStore(t *testing.T) {
	store := memory.New()
	opts := &Options{}
	WithStore(store)(opts)

	if opts.Store != store {
		t.Error("WithStore did not set Store")
	}
}

func TestWithCache(t *testing.T) {
	c := cache.NewMemory(0)
	opts := &Options{}
	WithCache(c)(opts)

	if opts.Cache != c {
		t.Error("WithCache did not set Cache")
	}
}

func TestWithNotifier(t *testing.T) {
	opts := &Options{}
	WithNotifier(notify.Noop{})(opts)

	if _, ok := opts.Notifier.(notify.Noop); !ok {
		t.Errorf("Notifier = %T, want notify.Noop", opts.Notifier)
	}
}

func TestWithLogger(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	opts := &Options{}
	WithLogger(logger)(opts)

	if opts.Logger != logger {
		t.Error("WithLogger did not set Logger")
	}
}
