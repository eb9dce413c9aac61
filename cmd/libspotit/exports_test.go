package main

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"unsafe"

	"github.com/MeKo-Tech/spotit/internal/bridge"
	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/MeKo-Tech/spotit/internal/labels"
	"github.com/MeKo-Tech/spotit/internal/lasterror"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useFakeBridge points the exports at a bridge backed by a fake engine and
// pins the test to one OS thread, since errors are kept per thread.
func useFakeBridge(t *testing.T, probe func() error) (*bridge.Bridge, registry.Handle) {
	t.Helper()
	runtime.LockOSThread()

	b := bridge.New(bridge.Options{
		Config: config.DefaultConfig(),
		Factory: func(path string) (registry.Detector, error) {
			cfg := detector.DefaultConfig()
			cfg.ModelPath = path
			cfg.Labels = labels.New("dog", "cat")
			d, err := detector.Open(cfg, func(detector.Config) (detector.Engine, error) {
				return testutil.NewFakeEngine(1, 0.95, 1, 2, 3, 4), nil
			})
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		Probe: probe,
	})
	prev := instance
	instance = func() *bridge.Bridge { return b }
	t.Cleanup(func() {
		spotitml_shutdown()
		instance = prev
		runtime.UnlockOSThread()
	})

	h := b.InitDetector(lasterror.Current(), testutil.TempModelFile(t))
	require.NotZero(t, h, b.LastError(lasterror.Current()))
	return b, h
}

func TestBorrowRejectsNullAndEmpty(t *testing.T) {
	assert.Nil(t, borrow(nil, 48))
	assert.Nil(t, borrow(nil, 0))

	buf := testutil.GradientImage(4, 4, 3)
	ptr, n := cBuffer(buf)
	assert.Nil(t, borrow(ptr, 0))
	view := borrow(ptr, n)
	require.Len(t, view, len(buf))
	assert.Equal(t, buf, view)
}

func TestDetectNullDataFails(t *testing.T) {
	_, h := useFakeBridge(t, func() error { return nil })

	assert.Nil(t, spotitml_detect_symbols(cHandle(h), nil, 48, 4, 4, 3))
	msg := goString(spotitml_get_last_error())
	assert.NotEmpty(t, msg)
	assert.Contains(t, goString(spotitml_get_last_status()), "fail")
}

func TestDetectZeroLengthFails(t *testing.T) {
	_, h := useFakeBridge(t, func() error { return nil })

	buf := testutil.GradientImage(4, 4, 3)
	ptr, _ := cBuffer(buf)
	assert.Nil(t, spotitml_detect_symbols(cHandle(h), ptr, 0, 4, 4, 3))
	assert.NotEmpty(t, goString(spotitml_get_last_error()))

	ptr, n := cBuffer(buf)
	assert.Nil(t, spotitml_detect_symbols(cHandle(h), ptr, n-1, 4, 4, 3))
	assert.NotEmpty(t, goString(spotitml_get_last_error()))
}

func TestDetectAllocRoundTrip(t *testing.T) {
	_, h := useFakeBridge(t, func() error { return nil })

	ptr, n := cBuffer(testutil.GradientImage(4, 4, 3))
	out := spotitml_detect_symbols_alloc(cHandle(h), ptr, n, 4, 4, 3)
	require.NotNil(t, out, goString(spotitml_get_last_error()))
	assert.Equal(t, "cat:0.95:1:2:3:4", goString(out))
	assert.Empty(t, goString(spotitml_get_last_error()))

	spotitml_free_memory(unsafe.Pointer(out))
	spotitml_free_memory(nil)

	scoped := spotitml_detect_symbols(cHandle(h), ptr, n, 4, 4, 3)
	require.NotNil(t, scoped)
	assert.Equal(t, "cat:0.95:1:2:3:4", goString(scoped))
}

func TestSystemStatusNeverNull(t *testing.T) {
	useFakeBridge(t, func() error { return errors.New("onnx runtime library not found") })

	for range 3 {
		status := spotitml_get_system_status()
		require.NotNil(t, status)
		parts := strings.SplitN(goString(status), ":", 3)
		require.Len(t, parts, 3)
		assert.Equal(t, "1", parts[1])
	}
}

func TestReleaseThreadFreesState(t *testing.T) {
	b, _ := useFakeBridge(t, func() error { return nil })

	assert.Nil(t, spotitml_detect_symbols(0, nil, 0, 1, 1, 1))
	require.NotNil(t, spotitml_get_last_error())
	require.Positive(t, scratch.len())
	require.Positive(t, b.Contexts())

	spotitml_release_thread()
	assert.Equal(t, 0, scratch.len())
	assert.Equal(t, 0, b.Contexts())
	assert.Empty(t, goString(spotitml_get_last_error()))
}
