package main

/*
#include <stdint.h>
#include <stdlib.h>
#include "callback.h"
*/
import "C"

import (
	"log/slog"
	"math"
	"sync"
	"unsafe"

	"github.com/MeKo-Tech/spotit/internal/lasterror"
	"github.com/MeKo-Tech/spotit/internal/logging"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/version"
)

var versionString = sync.OnceValue(func() *C.char {
	return C.CString(version.Version)
})

//export spotitml_get_system_status
func spotitml_get_system_status() *C.char {
	ctx := lasterror.Current()
	return scratch.put(ctx, slotStatus, instance().SystemStatus(ctx))
}

//export spotitml_init_detector
func spotitml_init_detector(modelPath *C.char) C.uint64_t {
	ctx := lasterror.Current()
	return cHandle(instance().InitDetector(ctx, goString(modelPath)))
}

//export spotitml_free_detector
func spotitml_free_detector(handle C.uint64_t) {
	instance().FreeDetector(lasterror.Current(), registry.Handle(handle))
}

// borrow views the caller's buffer without copying. A NULL pointer or an
// impossible length yields nil, which fails validation.
func borrow(data *C.uint8_t, length C.size_t) []byte {
	if data == nil || length == 0 || uint64(length) > math.MaxInt {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(data)), int(length))
}

func detect(ctx lasterror.ContextID, handle C.uint64_t, data *C.uint8_t, length C.size_t, width, height, channels C.int32_t) (string, bool) {
	return instance().DetectSymbols(ctx, registry.Handle(handle), borrow(data, length),
		int(width), int(height), int(channels))
}

//export spotitml_detect_symbols
func spotitml_detect_symbols(handle C.uint64_t, data *C.uint8_t, length C.size_t, width, height, channels C.int32_t) *C.char {
	ctx := lasterror.Current()
	result, ok := detect(ctx, handle, data, length, width, height, channels)
	if !ok {
		return nil
	}
	return scratch.put(ctx, slotResult, result)
}

//export spotitml_detect_symbols_alloc
func spotitml_detect_symbols_alloc(handle C.uint64_t, data *C.uint8_t, length C.size_t, width, height, channels C.int32_t) *C.char {
	result, ok := detect(lasterror.Current(), handle, data, length, width, height, channels)
	if !ok {
		return nil
	}
	return C.CString(result)
}

//export spotitml_free_memory
func spotitml_free_memory(ptr unsafe.Pointer) {
	if ptr != nil {
		C.free(ptr)
	}
}

//export spotitml_set_log_callback
func spotitml_set_log_callback(cb C.spotitml_log_callback) {
	b := instance()
	if cb == nil {
		b.SetLogCallback(nil)
		return
	}
	b.SetLogCallback(func(level logging.Level, message string) {
		cs := C.CString(message)
		defer C.free(unsafe.Pointer(cs))
		C.spotitml_invoke_log(cb, C.int(level), cs)
	})
}

//export spotitml_get_last_error
func spotitml_get_last_error() *C.char {
	ctx := lasterror.Current()
	return scratch.put(ctx, slotError, instance().LastError(ctx))
}

//export spotitml_get_last_status
func spotitml_get_last_status() *C.char {
	ctx := lasterror.Current()
	return scratch.put(ctx, slotLastStatus, instance().LastStatus(ctx))
}

//export spotitml_get_version
func spotitml_get_version() *C.char {
	return versionString()
}

//export spotitml_get_metrics
func spotitml_get_metrics() *C.char {
	ctx := lasterror.Current()
	text, ok := instance().MetricsText(ctx)
	if !ok {
		return nil
	}
	return scratch.put(ctx, slotMetrics, text)
}

//export spotitml_release_thread
func spotitml_release_thread() {
	ctx := lasterror.Current()
	instance().ReleaseContext(ctx)
	scratch.release(ctx)
}

//export spotitml_shutdown
func spotitml_shutdown() {
	if err := instance().Shutdown(); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	scratch.reset()
}
