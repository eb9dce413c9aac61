//go:build !linux && !windows && !(darwin && cgo)

package lasterror

// Current returns 0: without a thread ID every caller shares one context.
func Current() ContextID {
	return 0
}
