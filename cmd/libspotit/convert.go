package main

/*
#include <stdint.h>
#include <stddef.h>
*/
import "C"

import (
	"unsafe"

	"github.com/MeKo-Tech/spotit/internal/registry"
)

// goString copies cs into Go memory. NULL becomes "".
func goString(cs *C.char) string {
	if cs == nil {
		return ""
	}
	return C.GoString(cs)
}

func cHandle(h registry.Handle) C.uint64_t {
	return C.uint64_t(h)
}

// cBuffer presents b the way a C caller passes an image.
func cBuffer(b []byte) (*C.uint8_t, C.size_t) {
	if len(b) == 0 {
		return nil, 0
	}
	return (*C.uint8_t)(unsafe.Pointer(&b[0])), C.size_t(len(b))
}
