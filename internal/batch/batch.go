// Package batch discovers image files and fans work on them out to a
// fixed number of workers.
package batch

import (
	"runtime"
	"sync"
)

// Workers clamps n to [1, jobs]; n <= 0 means one worker per CPU.
func Workers(n, jobs int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > jobs {
		n = jobs
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run calls fn for every item on up to workers goroutines and returns the
// results in item order. worker is in [0, workers) and is stable for the
// lifetime of the goroutine, so it can key per-worker state.
func Run[T any](items []string, workers int, fn func(worker int, item string) T) []T {
	results := make([]T, len(items))
	if len(items) == 0 {
		return results
	}
	workers = Workers(workers, len(items))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = fn(w, items[i])
			}
		}()
	}
	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
