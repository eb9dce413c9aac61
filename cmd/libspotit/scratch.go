package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/MeKo-Tech/spotit/internal/lasterror"
)

// slotKind separates the strings returned by different functions, so
// reading the last error does not invalidate a detection result.
type slotKind int

const (
	slotStatus slotKind = iota
	slotResult
	slotError
	slotLastStatus
	slotMetrics
	numSlots
)

// scratchTable owns the C strings handed out per thread.
type scratchTable struct {
	mu      sync.Mutex
	strings map[lasterror.ContextID]*[numSlots]*C.char
}

var scratch = &scratchTable{strings: map[lasterror.ContextID]*[numSlots]*C.char{}}

// put replaces ctx's string of the given kind and returns the new copy.
func (s *scratchTable) put(ctx lasterror.ContextID, kind slotKind, value string) *C.char {
	cs := C.CString(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.strings[ctx]
	if !ok {
		slots = new([numSlots]*C.char)
		s.strings[ctx] = slots
	}
	if old := slots[kind]; old != nil {
		C.free(unsafe.Pointer(old))
	}
	slots[kind] = cs
	return cs
}

// release frees ctx's strings.
func (s *scratchTable) release(ctx lasterror.ContextID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.strings[ctx]
	if !ok {
		return
	}
	for _, cs := range slots {
		if cs != nil {
			C.free(unsafe.Pointer(cs))
		}
	}
	delete(s.strings, ctx)
}

// reset frees every string.
func (s *scratchTable) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ctx, slots := range s.strings {
		for _, cs := range slots {
			if cs != nil {
				C.free(unsafe.Pointer(cs))
			}
		}
		delete(s.strings, ctx)
	}
}

// len returns the number of threads holding strings.
func (s *scratchTable) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.strings)
}
