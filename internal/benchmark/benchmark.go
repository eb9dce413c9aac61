// Package benchmark times repeated detection calls.
package benchmark

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"time"
)

// Timer measures one interval.
type Timer struct {
	name     string
	start    time.Time
	duration time.Duration
}

// NewTimer starts a named timer.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop records and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats is the subset of runtime.MemStats reported with results.
type MemoryStats struct {
	Alloc      uint64
	TotalAlloc uint64
	Sys        uint64
	NumGC      uint32
}

// GetMemoryStats reads the current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d",
		m.Alloc/1024, m.TotalAlloc/1024, m.Sys/1024, m.NumGC)
}

// Result summarises one benchmark. Latencies cover successful iterations
// only; Failures counts the rest.
type Result struct {
	Name         string
	Iterations   int
	Failures     int
	Total        time.Duration
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Err          error
}

func (r Result) String() string {
	if r.Iterations == r.Failures {
		return fmt.Sprintf("%s: all %d iteration(s) failed: %v", r.Name, r.Iterations, r.Err)
	}
	allocated := r.MemoryAfter.TotalAlloc - r.MemoryBefore.TotalAlloc
	return fmt.Sprintf("%s: %d iterations (%d failed), mean %v, p50 %v, p95 %v, min %v, max %v, alloc %d KB/op",
		r.Name, r.Iterations, r.Failures, r.Mean, r.P50, r.P95, r.Min, r.Max,
		allocated/1024/uint64(r.Iterations)) //nolint:gosec // G115: iterations is positive
}

// Run calls fn iterations times and summarises the latencies. The first
// error is kept in Err.
func Run(name string, iterations int, fn func() error) Result {
	r := Result{Name: name, Iterations: iterations}
	if iterations <= 0 {
		r.Err = errors.New("iterations must be > 0")
		return r
	}

	runtime.GC()
	r.MemoryBefore = GetMemoryStats()

	samples := make([]time.Duration, 0, iterations)
	total := NewTimer(name)
	for range iterations {
		t := NewTimer(name)
		err := fn()
		d := t.Stop()
		if err != nil {
			r.Failures++
			if r.Err == nil {
				r.Err = err
			}
			continue
		}
		samples = append(samples, d)
	}
	r.Total = total.Stop()
	r.MemoryAfter = GetMemoryStats()

	if len(samples) == 0 {
		return r
	}
	slices.Sort(samples)
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	r.Min = samples[0]
	r.Max = samples[len(samples)-1]
	r.Mean = sum / time.Duration(len(samples))
	r.P50 = percentile(samples, 50)
	r.P95 = percentile(samples, 95)
	return r
}

// percentile uses nearest rank on sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Suite runs named benchmarks in registration order.
type Suite struct {
	names   []string
	fns     map[string]func() error
	results []Result
}

// NewSuite returns an empty suite.
func NewSuite() *Suite {
	return &Suite{fns: make(map[string]func() error)}
}

// Add registers fn under name, replacing an earlier registration.
func (s *Suite) Add(name string, fn func() error) {
	if _, ok := s.fns[name]; !ok {
		s.names = append(s.names, name)
	}
	s.fns[name] = fn
}

// RunAll runs every benchmark and returns the results.
func (s *Suite) RunAll(iterations int) []Result {
	s.results = s.results[:0]
	for _, name := range s.names {
		s.results = append(s.results, Run(name, iterations, s.fns[name]))
	}
	return s.Results()
}

// Results returns a copy of the last RunAll results.
func (s *Suite) Results() []Result {
	return slices.Clone(s.results)
}

// PrintResults writes one line per result.
func (s *Suite) PrintResults(w io.Writer) {
	for _, r := range s.results {
		_, _ = fmt.Fprintln(w, r.String())
	}
}
