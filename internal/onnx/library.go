package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"

	// EnvLibraryPath overrides every other library lookup.
	EnvLibraryPath = "SPOTIT_ORT_LIB_PATH"
)

// ErrLibraryNotFound is returned when no ONNX Runtime shared library exists
// at any searched location.
var ErrLibraryNotFound = errors.New("onnx runtime library not found")

var (
	envMu   sync.Mutex
	envPath string
)

// libraryName returns the platform-specific ONNX Runtime library filename.
func libraryName() (string, error) {
	return libraryNameFor(runtime.GOOS)
}

func libraryNameFor(goos string) (string, error) {
	switch goos {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// systemLibraryPaths lists well-known install locations, GPU builds first
// when useGPU is set.
func systemLibraryPaths(useGPU bool) []string {
	if runtime.GOOS != osLinux {
		return nil
	}
	paths := []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
	}
	if useGPU {
		paths = append([]string{"/opt/onnxruntime/gpu/lib/libonnxruntime.so"}, paths...)
	}
	return paths
}

// candidatePaths returns the lookup order: explicit path, environment
// override, lib/<os>-<arch>/ next to the host executable (and its parent),
// then system locations.
func candidatePaths(explicit string, useGPU bool) []string {
	var out []string
	if explicit != "" {
		out = append(out, explicit)
	}
	if env := os.Getenv(EnvLibraryPath); env != "" {
		out = append(out, env)
	}
	if name, err := libraryName(); err == nil {
		if exe, err := os.Executable(); err == nil {
			dir := filepath.Dir(exe)
			platform := runtime.GOOS + "-" + runtime.GOARCH
			out = append(out,
				filepath.Join(dir, name),
				filepath.Join(dir, "lib", platform, name),
				filepath.Join(dir, "..", "lib", platform, name),
			)
		}
	}
	return append(out, systemLibraryPaths(useGPU)...)
}

// ResolveLibraryPath returns the first candidate that exists as a regular file.
func ResolveLibraryPath(explicit string, useGPU bool) (string, error) {
	candidates := candidatePaths(explicit, useGPU)
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (searched %d locations; set %s or onnx.library_path)",
		ErrLibraryNotFound, len(candidates), EnvLibraryPath)
}

// Initialize loads the runtime library once per process. Later calls are
// no-ops; a different path after initialisation is ignored with a warning
// because ONNX Runtime cannot be reloaded in-process.
func Initialize(explicit string, useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		if explicit != "" && envPath != "" && explicit != envPath {
			slog.Warn("onnx runtime already initialised, ignoring library path",
				"requested", explicit, "active", envPath)
		}
		return nil
	}

	path, err := ResolveLibraryPath(explicit, useGPU)
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	// The default environment logs at WARNING.
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", path, err)
	}
	envPath = path
	slog.Info("onnx runtime initialised", "library", path)
	return nil
}

// Initialized reports whether the runtime environment is loaded.
func Initialized() bool {
	return onnxruntime_go.IsInitialized()
}

// Shutdown tears down the runtime environment. Sessions must be destroyed
// first.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()
	if !onnxruntime_go.IsInitialized() {
		return nil
	}
	envPath = ""
	return onnxruntime_go.DestroyEnvironment()
}
