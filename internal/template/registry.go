package template

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader produces a fresh template. Registry calls it on every reload.
type Loader func() (*Template, error)

// FileLoader returns a Loader reading path, or the built-in template when
// path is empty.
func FileLoader(path string) Loader {
	if path == "" {
		return func() (*Template, error) { return Default(), nil }
	}
	return func() (*Template, error) { return LoadFile(path) }
}

// Registry holds the current template. Reads never block on a reload.
type Registry struct {
	mu      sync.RWMutex
	current *Template
	version int

	load   Loader
	group  singleflight.Group
	logger *zap.Logger
}

// NewRegistry loads the initial template. A failing initial load is an error;
// a failing later reload keeps the previous template.
func NewRegistry(load Loader, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t, err := load()
	if err != nil {
		return nil, err
	}
	return &Registry{current: t, version: 1, load: load, logger: logger}, nil
}

// Current returns the active template snapshot.
func (r *Registry) Current() *Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version increments on every successful reload.
func (r *Registry) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Reload re-reads the template source. Concurrent calls share one load.
func (r *Registry) Reload(ctx context.Context) (*Template, error) {
	ch := r.group.DoChan("reload", func() (any, error) {
		t, err := r.load()
		if err != nil {
			r.logger.Warn("template reload failed, keeping previous template", zap.Error(err))
			return nil, err
		}
		r.mu.Lock()
		r.current = t
		r.version++
		version := r.version
		r.mu.Unlock()
		r.logger.Info("template reloaded",
			zap.String("template", t.Name()),
			zap.Int("sections", len(t.sections)),
			zap.Int("version", version))
		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Template), nil
	}
}
