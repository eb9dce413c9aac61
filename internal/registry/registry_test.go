package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	path    string
	gate    chan struct{}
	entered chan struct{}
	runs    atomic.Int64
	closes  atomic.Int64
}

func (f *fakeDetector) Run(data []byte, w, h, c int) ([]detector.Detection, error) {
	f.runs.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return []detector.Detection{{Symbol: f.path, Confidence: 1}}, nil
}

func (f *fakeDetector) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	created map[string]*fakeDetector
	fail    error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: map[string]*fakeDetector{}}
}

func (f *fakeFactory) New(path string) (Detector, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	d := &fakeDetector{path: path}
	f.mu.Lock()
	f.created[path] = d
	f.mu.Unlock()
	return d, nil
}

func (f *fakeFactory) get(path string) *fakeDetector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[path]
}

func TestHandleEncoding(t *testing.T) {
	h := makeHandle(3, 7)
	assert.Equal(t, uint32(3), h.index())
	assert.Equal(t, uint32(7), h.generation())
	assert.Equal(t, "0x300000007", h.String())
}

func TestParseBusyPolicy(t *testing.T) {
	p, err := ParseBusyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBlock, p)

	p, err = ParseBusyPolicy("FAIL")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)
	assert.Equal(t, "fail", p.String())

	_, err = ParseBusyPolicy("queue")
	require.Error(t, err)
}

func TestCreateResolveRelease(t *testing.T) {
	ff := newFakeFactory()
	r := New(ff.New, PolicyBlock)

	h, err := r.Create("a.onnx")
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.Equal(t, 1, r.Len())

	det, err := r.Resolve(h)
	require.NoError(t, err)
	assert.Same(t, ff.get("a.onnx"), det)

	dets, err := r.Run(h, nil, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "a.onnx", dets[0].Symbol)

	released, err := r.Release(h)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int64(1), ff.get("a.onnx").closes.Load())

	_, err = r.Resolve(h)
	require.ErrorIs(t, err, detector.ErrInvalidHandle)
	_, err = r.Run(h, nil, 1, 1, 1)
	require.ErrorIs(t, err, detector.ErrInvalidHandle)
}

func TestCreateFailure(t *testing.T) {
	ff := newFakeFactory()
	ff.fail = errors.New("no such model")
	r := New(ff.New, PolicyBlock)

	h, err := r.Create("x.onnx")
	require.ErrorIs(t, err, detector.ErrModelLoad)
	assert.Zero(t, h)
	assert.Equal(t, 0, r.Len())

	ff.fail = nil
	h, err = r.Create("y.onnx")
	require.NoError(t, err, "registry stays usable after a failed create")
	assert.NotZero(t, h)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ff := newFakeFactory()
	r := New(ff.New, PolicyBlock)

	a, err := r.Create("a")
	require.NoError(t, err)
	b, err := r.Create("b")
	require.NoError(t, err)

	released, err := r.Release(a)
	require.NoError(t, err)
	assert.True(t, released)

	for _, h := range []Handle{a, 0, makeHandle(99, 1), makeHandle(b.index(), b.generation()+1)} {
		released, err := r.Release(h)
		require.NoError(t, err)
		assert.False(t, released, "handle %s", h)
	}

	assert.Equal(t, int64(1), ff.get("a").closes.Load())
	assert.Equal(t, int64(0), ff.get("b").closes.Load())
	_, err = r.Run(b, nil, 1, 1, 1)
	require.NoError(t, err, "other handles are unaffected")
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	r := New(newFakeFactory().New, PolicyBlock)

	old, err := r.Create("first")
	require.NoError(t, err)
	_, err = r.Release(old)
	require.NoError(t, err)

	fresh, err := r.Create("second")
	require.NoError(t, err)
	assert.Equal(t, old.index(), fresh.index(), "slot is reused")
	assert.NotEqual(t, old, fresh)

	_, err = r.Resolve(old)
	require.ErrorIs(t, err, detector.ErrInvalidHandle)

	dets, err := r.Run(fresh, nil, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "second", dets[0].Symbol)
}

func TestGenerationWrapSkipsZero(t *testing.T) {
	r := New(newFakeFactory().New, PolicyBlock)
	r.slots = []slot{{gen: ^uint32(0)}}
	r.free = []uint32{0}

	h, err := r.Create("m")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.generation())
	assert.NotZero(t, h)
}

func TestBusyPolicyFail(t *testing.T) {
	ff := newFakeFactory()
	r := New(ff.New, PolicyFail)
	h, err := r.Create("m")
	require.NoError(t, err)

	det := ff.get("m")
	det.gate = make(chan struct{})
	det.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(h, nil, 1, 1, 1)
		done <- err
	}()
	<-det.entered

	_, err = r.Run(h, nil, 1, 1, 1)
	require.ErrorIs(t, err, detector.ErrBusy)

	close(det.gate)
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), det.runs.Load())
}

func TestBusyPolicyBlock(t *testing.T) {
	ff := newFakeFactory()
	r := New(ff.New, PolicyBlock)
	h, err := r.Create("m")
	require.NoError(t, err)

	det := ff.get("m")
	det.gate = make(chan struct{})
	det.entered = make(chan struct{}, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(h, nil, 1, 1, 1)
			errs <- err
		}()
	}

	<-det.entered
	select {
	case <-det.entered:
		t.Fatal("second call entered the detector while the first was running")
	case <-time.After(50 * time.Millisecond):
	}

	det.gate <- struct{}{}
	<-det.entered
	det.gate <- struct{}{}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestReleaseWaitsForInFlightRun(t *testing.T) {
	ff := newFakeFactory()
	r := New(ff.New, PolicyBlock)
	h, err := r.Create("m")
	require.NoError(t, err)

	det := ff.get("m")
	det.gate = make(chan struct{})
	det.entered = make(chan struct{}, 1)

	runDone := make(chan error, 1)
	go func() {
		_, err := r.Run(h, nil, 1, 1, 1)
		runDone <- err
	}()
	<-det.entered

	releaseDone := make(chan struct{})
	go func() {
		_, _ = r.Release(h)
		close(releaseDone)
	}()

	select {
	case <-releaseDone:
		t.Fatal("release closed the detector during a detection")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int64(0), det.closes.Load())

	close(det.gate)
	require.NoError(t, <-runDone)
	<-releaseDone
	assert.Equal(t, int64(1), det.closes.Load())
}

func TestCloseAll(t *testing.T) {
	ff := newFakeFactory()
	r := New(ff.New, PolicyBlock)
	a, _ := r.Create("a")
	b, _ := r.Create("b")
	_, _ = r.Release(a)

	assert.Equal(t, 1, r.CloseAll())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int64(1), ff.get("b").closes.Load())

	_, err := r.Resolve(b)
	require.ErrorIs(t, err, detector.ErrInvalidHandle)
	assert.Equal(t, 0, r.CloseAll())
}
