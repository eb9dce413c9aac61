package lasterror

import "golang.org/x/sys/windows"

// Current returns the calling OS thread's ID. Only meaningful while the
// goroutine is pinned to its thread, as it is inside a cgo callback.
func Current() ContextID {
	return ContextID(windows.GetCurrentThreadId())
}
