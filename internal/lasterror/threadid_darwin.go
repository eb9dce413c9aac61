//go:build darwin && cgo

package lasterror

/*
#include <pthread.h>
#include <stdint.h>

static uint64_t spotit_thread_id(void) {
	uint64_t tid = 0;
	pthread_threadid_np(NULL, &tid);
	return tid;
}
*/
import "C"

// Current returns the calling OS thread's ID. Only meaningful while the
// goroutine is pinned to its thread, as it is inside a cgo callback.
func Current() ContextID {
	return ContextID(C.spotit_thread_id())
}
