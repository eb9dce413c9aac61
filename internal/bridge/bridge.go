// Package bridge implements the operations behind the C ABI in Go terms.
//
// Every operation takes the caller's context ID, clears that context's
// last error on entry, and on return has either recorded a status or an
// error for it. Failures are reported through sentinel return values
// (zero handle, ok=false); panics are recovered and reported the same way.
package bridge

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/MeKo-Tech/spotit/internal/lasterror"
	"github.com/MeKo-Tech/spotit/internal/logging"
	"github.com/MeKo-Tech/spotit/internal/metrics"
	"github.com/MeKo-Tech/spotit/internal/onnx"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/version"
)

// ContextID aliases the per-caller key of the error store.
type ContextID = lasterror.ContextID

// Options configures a Bridge. Zero fields get production defaults.
type Options struct {
	// Config defaults to config.DefaultConfig when left zero.
	Config config.Config

	// Factory loads detectors. Defaults to ONNX Runtime via detector.New.
	Factory registry.Factory

	// Probe reports whether inference is available; a non-nil error marks
	// the system degraded. Defaults to checking the ONNX Runtime library.
	Probe func() error

	Metrics *metrics.Metrics
}

// Bridge owns the handle registry, the per-context error store and the
// metrics of one process.
type Bridge struct {
	cfg       config.Config
	registry  *registry.Registry
	errors    *lasterror.Store
	metrics   *metrics.Metrics
	probe     func() error
	setupErr  error
	precision int

	// lifecycle is held shared by InitDetector and exclusively by Shutdown,
	// so no session is created while the runtime is torn down.
	lifecycle sync.RWMutex
}

// New builds a bridge. Configuration problems that only matter when a
// model is loaded (for example an unreadable label file) do not fail New;
// they surface in SystemStatus and in every InitDetector call.
func New(opts Options) *Bridge {
	if reflect.ValueOf(opts.Config).IsZero() {
		opts.Config = config.DefaultConfig()
	}
	b := &Bridge{
		cfg:       opts.Config,
		errors:    lasterror.NewStore(),
		metrics:   opts.Metrics,
		probe:     opts.Probe,
		precision: opts.Config.Output.ConfidencePrecision,
	}
	if b.precision < 0 || b.precision > config.MaxConfidencePrecision {
		b.precision = config.DefaultConfig().Output.ConfidencePrecision
	}
	if b.metrics == nil {
		b.metrics = metrics.New(opts.Config.Metrics.GoRuntime)
	}

	factory := opts.Factory
	if factory == nil {
		factory = b.defaultFactory()
	}
	if b.probe == nil {
		b.probe = func() error {
			if onnx.Initialized() {
				return nil
			}
			_, err := onnx.ResolveLibraryPath(b.cfg.ONNX.LibraryPath, b.cfg.GPU.Enabled)
			return err
		}
	}
	b.registry = registry.New(factory, opts.Config.BusyPolicy())
	return b
}

func (b *Bridge) defaultFactory() registry.Factory {
	tmpl, err := b.cfg.ToDetectorConfig()
	if err != nil {
		b.setupErr = fmt.Errorf("detector configuration: %w", err)
		slog.Error("invalid detector configuration", "error", err)
		return func(string) (registry.Detector, error) {
			return nil, b.setupErr
		}
	}
	return func(path string) (registry.Detector, error) {
		cfg := tmpl
		cfg.ModelPath = path
		d, err := detector.New(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// fail records err for ctx.
func (b *Bridge) fail(ctx ContextID, op string, err error) {
	kind := detector.KindOf(err)
	b.errors.SetError(ctx, err.Error())
	b.metrics.Error(kind.String())
	switch kind {
	case detector.KindInvalidInput, detector.KindInvalidHandle, detector.KindBusy:
		slog.Warn("bridge call rejected", "op", op, "error", err)
	default:
		slog.Error("bridge call failed", "op", op, "error", err)
	}
}

// recoverInto turns a panic into a recorded internal error and runs
// onPanic so the caller can set its sentinel.
func (b *Bridge) recoverInto(ctx ContextID, op string, onPanic func()) {
	if r := recover(); r != nil {
		b.fail(ctx, op, detector.Errorf(detector.KindInference, op, "internal error: %v", r))
		if onPanic != nil {
			onPanic()
		}
	}
}

// SystemStatus returns "version:code:message". It never fails.
func (b *Bridge) SystemStatus(ctx ContextID) (status string) {
	defer func() {
		if r := recover(); r != nil {
			status = FormatStatus(StatusInternal, fmt.Sprintf("status check failed: %v", r))
			b.errors.SetError(ctx, status)
		}
	}()
	b.errors.Clear(ctx)

	live := b.registry.Len()
	switch {
	case b.setupErr != nil:
		status = FormatStatus(StatusDegraded, b.setupErr.Error())
	default:
		if err := b.probe(); err != nil {
			status = FormatStatus(StatusDegraded, err.Error())
		} else {
			status = FormatStatus(StatusReady, fmt.Sprintf("ready, %d detector(s) loaded", live))
		}
	}
	b.errors.SetStatus(ctx, "status reported")
	return status
}

// InitDetector loads a model and returns its handle, or 0 on failure.
func (b *Bridge) InitDetector(ctx ContextID, modelPath string) (h registry.Handle) {
	const op = "init"
	defer b.recoverInto(ctx, op, func() { h = 0 })
	b.errors.Clear(ctx)

	b.lifecycle.RLock()
	defer b.lifecycle.RUnlock()
	h, err := b.registry.Create(modelPath)
	b.metrics.DetectorCreated(err == nil, b.registry.Len())
	if err != nil {
		b.fail(ctx, op, err)
		return 0
	}
	slog.Info("detector loaded", "handle", h.String(), "model", modelPath)
	b.errors.SetStatus(ctx, fmt.Sprintf("detector %s loaded", h))
	return h
}

// FreeDetector releases h. Unknown and already released handles are a
// successful no-op.
func (b *Bridge) FreeDetector(ctx ContextID, h registry.Handle) {
	const op = "free"
	defer b.recoverInto(ctx, op, nil)
	b.errors.Clear(ctx)

	released, err := b.registry.Release(h)
	if err != nil {
		slog.Warn("detector close failed", "handle", h.String(), "error", err)
	}
	if !released {
		b.errors.SetStatus(ctx, fmt.Sprintf("handle %s not registered, nothing to release", h))
		return
	}
	b.metrics.DetectorReleased(b.registry.Len())
	slog.Info("detector released", "handle", h.String())
	b.errors.SetStatus(ctx, fmt.Sprintf("detector %s released", h))
}

// DetectSymbols runs detection and returns the formatted result. ok is
// false on failure; an empty string with ok true means no detections.
// data is only read during the call.
func (b *Bridge) DetectSymbols(ctx ContextID, h registry.Handle, data []byte, width, height, channels int) (result string, ok bool) {
	const op = "detect"
	defer b.recoverInto(ctx, op, func() { result, ok = "", false })
	b.errors.Clear(ctx)

	start := time.Now()
	dets, err := b.registry.Run(h, data, width, height, channels)
	b.metrics.Detection(err == nil, len(dets), time.Since(start))
	if err != nil {
		b.fail(ctx, op, err)
		return "", false
	}
	b.errors.SetStatus(ctx, fmt.Sprintf("detected %d symbol(s)", len(dets)))
	return FormatDetections(dets, b.precision), true
}

// MetricsText returns the metrics exposition, or ok=false on failure.
func (b *Bridge) MetricsText(ctx ContextID) (text string, ok bool) {
	const op = "metrics"
	defer b.recoverInto(ctx, op, func() { text, ok = "", false })
	b.errors.Clear(ctx)

	text, err := b.metrics.Text()
	if err != nil {
		b.fail(ctx, op, err)
		return "", false
	}
	b.errors.SetStatus(ctx, "metrics collected")
	return text, true
}

// LastError returns ctx's last error, "" after a successful call.
func (b *Bridge) LastError(ctx ContextID) string {
	return b.errors.LastError(ctx)
}

// LastStatus returns ctx's last status message.
func (b *Bridge) LastStatus(ctx ContextID) string {
	return b.errors.LastStatus(ctx)
}

// ReleaseContext forgets ctx's last error and status.
func (b *Bridge) ReleaseContext(ctx ContextID) {
	b.errors.Forget(ctx)
}

// Contexts returns the number of contexts holding error state.
func (b *Bridge) Contexts() int {
	return b.errors.Len()
}

// SetLogCallback installs cb as the process log sink; nil restores stderr.
func (b *Bridge) SetLogCallback(cb logging.Callback) {
	logging.SetCallback(cb)
}

// Version returns the library version.
func (b *Bridge) Version() string {
	return version.Version
}

// Registry exposes the handle registry.
func (b *Bridge) Registry() *registry.Registry {
	return b.registry
}

// Shutdown releases every detector and forgets all per-context state. It
// waits for InitDetector calls in flight. The bridge stays usable; new
// detectors may be created afterwards.
func (b *Bridge) Shutdown() error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	n := b.registry.CloseAll()
	b.metrics.DetectorsClosed(n)
	b.errors.Reset()
	slog.Info("bridge shut down", "released", n)
	if err := onnx.Shutdown(); err != nil {
		return fmt.Errorf("failed to destroy onnx runtime: %w", err)
	}
	return nil
}
