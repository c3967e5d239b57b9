package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/adapters/file"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/workspace"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

const lockTTL = 5 * time.Second

// backend is an opened state store and the resources behind it.
type backend struct {
	store  ports.PathStateStore
	locker ports.DistributedLocker
	closer io.Closer
}

func (b backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func openBackend(c config.StateConfig) (backend, error) {
	b, err := openStore(c)
	if err != nil {
		return backend{}, err
	}
	var mws []middleware.Middleware
	if c.Compact {
		mws = append(mws, middleware.NewCompactionMiddleware())
	}
	if c.Encryption.Key != "" {
		enc, err := encryption(c.Encryption)
		if err != nil {
			b.Close()
			return backend{}, err
		}
		mws = append(mws, enc)
	}
	b.store = middleware.Chain(b.store, mws...)
	return b, nil
}

func encryption(c config.EncryptionConfig) (middleware.Middleware, error) {
	decode := func(s string) ([]byte, error) {
		k, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("state.encryption: invalid key: %w", err)
		}
		return k, nil
	}
	active, err := decode(c.Key)
	if err != nil {
		return nil, err
	}
	var fallback [][]byte
	for _, s := range c.FallbackKeys {
		k, err := decode(s)
		if err != nil {
			return nil, err
		}
		fallback = append(fallback, k)
	}
	return middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
}

func openStore(c config.StateConfig) (backend, error) {
	switch c.Backend {
	case config.BackendMemory:
		return backend{store: memory.NewStore()}, nil
	case config.BackendFile:
		return backend{store: file.New(c.File.Dir)}, nil
	case config.BackendRedis:
		s := redis.New(c.Redis.Addr, c.Redis.Password, c.Redis.DB,
			redis.WithPrefix(c.Redis.Prefix), redis.WithTTL(c.Redis.TTL))
		b := backend{store: s, closer: s}
		if c.Redis.Lock {
			b.locker = redis.NewLocker(s.Client(), c.Redis.Prefix)
		}
		return b, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(c.SQLite.Path)
		if err != nil {
			return backend{}, err
		}
		return backend{store: s, closer: s}, nil
	}
	return backend{}, fmt.Errorf("unknown state backend %q", c.Backend)
}

// app is a session over the configured workspace and state backend.
type app struct {
	*arbor.Session
	workspace *workspace.Workspace
	registry  *prometheus.Registry
	backend   backend
}

func openApp(ctx context.Context) (*app, error) {
	w, err := workspace.Load(cfg.Workspace.Path, workspace.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	b, err := openBackend(cfg.State)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	opts := []arbor.Option{
		arbor.WithLogger(logger),
		arbor.WithMetrics(observability.NewMetrics(reg)),
		arbor.WithExtensions(w.Extensions()...),
		arbor.WithStateStore(b.store),
		arbor.WithStateKey(cfg.State.Key),
		arbor.WithDebounce(cfg.State.Debounce),
	}
	if b.locker != nil {
		opts = append(opts, arbor.WithLocker(b.locker, lockTTL))
	}
	s := arbor.New(opts...)
	a := &app{Session: s, workspace: w, registry: reg, backend: b}
	if err := s.Open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// saveWorkspace writes the workspace back to its fixture file.
func (a *app) saveWorkspace() error {
	if cfg.Workspace.Path == "" {
		return errors.New("no workspace file configured, the demo workspace is read-only")
	}
	data, err := workspace.Marshal(a.workspace.Fixture())
	if err != nil {
		return err
	}
	return os.WriteFile(cfg.Workspace.Path, data, 0o644)
}

func (a *app) Close() error {
	return errors.Join(a.Session.Close(), a.backend.Close())
}
