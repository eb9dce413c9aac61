// Package registry owns detector instances on behalf of foreign callers.
//
// Callers only ever hold a Handle: a 64-bit value made of a slot index in
// the high half and the slot's generation in the low half. A reused slot
// gets the next generation, so a stale handle never resolves to the new
// occupant. Handle 0 is never issued.
package registry

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/MeKo-Tech/spotit/internal/detector"
)

// Handle is an opaque detector reference.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(index)<<32 | uint64(gen))
}

func (h Handle) index() uint32      { return uint32(h >> 32) }
func (h Handle) generation() uint32 { return uint32(h) }

func (h Handle) String() string {
	return fmt.Sprintf("%#x", uint64(h))
}

// Detector is the part of *detector.Detector the registry needs.
type Detector interface {
	Run(data []byte, width, height, channels int) ([]detector.Detection, error)
	Close() error
}

// Factory loads a detector for a model path.
type Factory func(modelPath string) (Detector, error)

// BusyPolicy decides what a detection call does when another call on the
// same handle is in flight.
type BusyPolicy int

const (
	// PolicyBlock waits for the running call to finish.
	PolicyBlock BusyPolicy = iota
	// PolicyFail returns a BusyError immediately.
	PolicyFail
)

func (p BusyPolicy) String() string {
	if p == PolicyFail {
		return "fail"
	}
	return "block"
}

// ParseBusyPolicy accepts "block" (or empty) and "fail".
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return PolicyBlock, nil
	case "fail":
		return PolicyFail, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown busy policy %q (want block or fail)", s)
	}
}

type entry struct {
	mu     sync.Mutex // held for the duration of Run and Close
	det    Detector
	path   string
	closed bool
}

type slot struct {
	gen   uint32
	entry *entry
}

// Registry maps handles to detectors. All methods are safe for concurrent
// use.
type Registry struct {
	factory Factory
	policy  BusyPolicy

	mu    sync.RWMutex
	slots []slot
	free  []uint32
	live  int
}

// New returns an empty registry.
func New(factory Factory, policy BusyPolicy) *Registry {
	return &Registry{factory: factory, policy: policy}
}

// Policy returns the busy policy.
func (r *Registry) Policy() BusyPolicy {
	return r.policy
}

// Create loads a detector and returns its handle. The model is loaded
// without holding the table lock.
func (r *Registry) Create(modelPath string) (Handle, error) {
	det, err := r.factory(modelPath)
	if err != nil {
		return 0, detector.Wrap(detector.KindModelLoad, "init", err)
	}

	r.mu.Lock()
	h, err := r.insertLocked(&entry{det: det, path: modelPath})
	r.mu.Unlock()
	if err != nil {
		if cerr := det.Close(); cerr != nil {
			slog.Warn("failed to close detector", "error", cerr)
		}
		return 0, err
	}
	slog.Debug("detector registered", "handle", h.String(), "model", modelPath)
	return h, nil
}

func (r *Registry) insertLocked(e *entry) (Handle, error) {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if uint64(len(r.slots)) >= math.MaxUint32 {
			return 0, detector.Errorf(detector.KindModelLoad, "init", "handle table full")
		}
		r.slots = append(r.slots, slot{})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.entry = e
	r.live++
	return makeHandle(idx, s.gen), nil
}

func (r *Registry) lookupLocked(h Handle) (*entry, bool) {
	if h == 0 {
		return nil, false
	}
	idx := h.index()
	if int(idx) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[idx]
	if s.entry == nil || s.gen != h.generation() {
		return nil, false
	}
	return s.entry, true
}

func invalidHandle(op string, h Handle) error {
	return detector.Errorf(detector.KindInvalidHandle, op, "unknown or released handle %s", h)
}

// Resolve returns the detector behind h.
func (r *Registry) Resolve(h Handle) (Detector, error) {
	r.mu.RLock()
	e, ok := r.lookupLocked(h)
	r.mu.RUnlock()
	if !ok {
		return nil, invalidHandle("resolve", h)
	}
	return e.det, nil
}

// Release removes h and closes its detector once any in-flight detection
// on it has finished. Unknown or already released handles are a no-op and
// report false.
func (r *Registry) Release(h Handle) (bool, error) {
	r.mu.Lock()
	e, ok := r.lookupLocked(h)
	if ok {
		idx := h.index()
		r.slots[idx].entry = nil
		r.free = append(r.free, idx)
		r.live--
	}
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, closeEntry(e)
}

func closeEntry(e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.det.Close()
}

// Run detects on h's detector, applying the busy policy.
func (r *Registry) Run(h Handle, data []byte, width, height, channels int) ([]detector.Detection, error) {
	const op = "detect"
	r.mu.RLock()
	e, ok := r.lookupLocked(h)
	r.mu.RUnlock()
	if !ok {
		return nil, invalidHandle(op, h)
	}

	if r.policy == PolicyFail {
		if !e.mu.TryLock() {
			return nil, detector.Errorf(detector.KindBusy, op, "handle %s has a detection in progress", h)
		}
	} else {
		e.mu.Lock()
	}
	defer e.mu.Unlock()

	if e.closed {
		return nil, invalidHandle(op, h)
	}
	return e.det.Run(data, width, height, channels)
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// CloseAll releases every live handle and returns how many were closed.
// Handles issued before the call stay invalid afterwards.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	var entries []*entry
	for i := range r.slots {
		if e := r.slots[i].entry; e != nil {
			entries = append(entries, e)
			r.slots[i].entry = nil
			r.free = append(r.free, uint32(i))
		}
	}
	r.live = 0
	r.mu.Unlock()

	for _, e := range entries {
		if err := closeEntry(e); err != nil {
			slog.Warn("failed to close detector", "model", e.path, "error", err)
		}
	}
	return len(entries)
}
