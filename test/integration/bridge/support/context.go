// Package support holds the godog step definitions for the bridge
// scenarios. Each scenario gets a fresh TestContext with its own bridge and
// a fake inference engine, so no ONNX Runtime installation is needed.
package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MeKo-Tech/spotit/internal/bridge"
	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/MeKo-Tech/spotit/internal/labels"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/testutil"
)

// TestContext is the per-scenario state.
type TestContext struct {
	Dir       string
	ModelPath string

	Config   config.Config
	Labels   []string
	Output   []float32
	ProbeErr error

	Caller bridge.ContextID
	Handle registry.Handle
	Result string
	OK     bool
	Status string

	mu      sync.Mutex
	engines []*testutil.FakeEngine
	bridge  *bridge.Bridge
}

// NewTestContext creates a scenario directory with an empty model file.
func NewTestContext() (*TestContext, error) {
	dir, err := os.MkdirTemp("", "spotit-bridge-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	model := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(model, []byte("fake model"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to create model file: %w", err)
	}
	return &TestContext{
		Dir:       dir,
		ModelPath: model,
		Config:    config.DefaultConfig(),
		Caller:    1,
	}, nil
}

// Bridge returns the scenario's bridge, building it on first use so Given
// steps can still change the configuration.
func (tc *TestContext) Bridge() *bridge.Bridge {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.bridge == nil {
		tc.bridge = bridge.New(bridge.Options{
			Config:  tc.Config,
			Factory: tc.factory,
			Probe:   func() error { return tc.ProbeErr },
		})
	}
	return tc.bridge
}

func (tc *TestContext) factory(path string) (registry.Detector, error) {
	cfg := detector.DefaultConfig()
	cfg.ModelPath = path
	cfg.Labels = labels.New(tc.Labels...)
	d, err := detector.Open(cfg, func(detector.Config) (detector.Engine, error) {
		e := testutil.NewFakeEngine(tc.Output...)
		tc.mu.Lock()
		tc.engines = append(tc.engines, e)
		tc.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// EngineCalls sums Run calls over every engine the scenario created.
func (tc *TestContext) EngineCalls() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	n := 0
	for _, e := range tc.engines {
		n += e.Calls()
	}
	return n
}

// LastEngine returns the most recently created engine.
func (tc *TestContext) LastEngine() (*testutil.FakeEngine, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(tc.engines) == 0 {
		return nil, errors.New("no detector has been loaded")
	}
	return tc.engines[len(tc.engines)-1], nil
}

// Cleanup shuts the bridge down and removes the scenario directory.
func (tc *TestContext) Cleanup() error {
	tc.mu.Lock()
	b := tc.bridge
	tc.mu.Unlock()
	var errs []error
	if b != nil {
		errs = append(errs, b.Shutdown())
	}
	errs = append(errs, os.RemoveAll(tc.Dir))
	return errors.Join(errs...)
}
