package cmd

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/spotit/internal/bridge"
	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/detector"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/testutil"
	"github.com/MeKo-Tech/spotit/internal/version"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps config discovery away from the developer's files.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv(config.EnvConfigFile, "")
	return dir
}

// fakeBridge swaps the bridge factory for one backed by a fake engine.
func fakeBridge(t *testing.T, output ...float32) *testutil.FakeEngine {
	t.Helper()
	engine := testutil.NewFakeEngine(output...)
	prev := newBridge
	newBridge = func(cfg config.Config) *bridge.Bridge {
		return bridge.New(bridge.Options{
			Config: cfg,
			Factory: func(path string) (registry.Detector, error) {
				dc := detector.DefaultConfig()
				dc.ModelPath = path
				d, err := detector.Open(dc, func(detector.Config) (detector.Engine, error) {
					return engine, nil
				})
				if err != nil {
					return nil, err
				}
				return d, nil
			},
			Probe: func() error { return nil },
		})
	}
	t.Cleanup(func() { newBridge = prev })
	return engine
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	isolate(t)
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "detect")
	assert.Contains(t, out, "status")
	assert.Contains(t, out, "config")
}

func TestRootCommandVersion(t *testing.T) {
	isolate(t)
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestStatusCommand(t *testing.T) {
	isolate(t)
	fakeBridge(t)
	out, err := execute(t, "status", "--metrics")
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	parts := strings.SplitN(lines[0], ":", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, version.Short(), parts[0])
	assert.Equal(t, "0", parts[1])
	assert.Contains(t, out, "spotit_detectors_live")
}

func TestStatusRejectsBadConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detector:\n  busy_policy: sometimes\n"), 0o600))

	_, err := execute(t, "status", "--config", path)
	assert.Error(t, err)
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(imaging.New(8, 4, color.White), path))
	return path
}

func TestDetectCommandText(t *testing.T) {
	dir := isolate(t)
	engine := fakeBridge(t, 3, 0.75, 1, 2, 3, 4)
	model := testutil.TempModelFile(t)
	img := writeImage(t, dir, "white.png")

	out, err := execute(t, "detect", model, img, "--channels", "1")
	require.NoError(t, err)
	assert.Contains(t, out, img+"\t3:0.75:1:2:3:4")

	input := engine.LastInput()
	assert.Equal(t, []int64{1, 1, 4, 8}, input.Shape)
	assert.InDelta(t, 1.0, input.Data[0], 1e-6)
}

func TestDetectCommandJSONAndResize(t *testing.T) {
	dir := isolate(t)
	engine := fakeBridge(t)
	model := testutil.TempModelFile(t)
	img := writeImage(t, dir, "white.png")

	out, err := execute(t, "detect", model, img, "--max-side", "4", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"symbols": []`)
	assert.Contains(t, out, `"width": 4`)
	assert.Contains(t, out, `"height": 2`)
	assert.Equal(t, []int64{1, 3, 2, 4}, engine.LastInput().Shape)
}

func TestDetectCommandFailures(t *testing.T) {
	dir := isolate(t)
	fakeBridge(t)
	img := writeImage(t, dir, "white.png")

	_, err := execute(t, "detect", filepath.Join(dir, "missing.onnx"), img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ModelLoadError")

	model := testutil.TempModelFile(t)
	_, err = execute(t, "detect", model, filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hi"), 0o600))
	out, err := execute(t, "detect", model, img, notes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 image(s) failed")
	assert.Contains(t, out, "unsupported image format")

	_, err = execute(t, "detect", model, img, "--format", "xml")
	assert.Error(t, err)
}

func TestDetectCommandDirectoryWithWorkers(t *testing.T) {
	dir := isolate(t)
	engine := fakeBridge(t, 0, 0.5, 1, 1, 2, 2)
	images := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(filepath.Join(images, "nested"), 0o750))
	for _, name := range []string{"a.png", "b.png", "c.png", "nested/d.png"} {
		writeImage(t, images, name)
	}

	out, err := execute(t, "detect", testutil.TempModelFile(t), images, "--workers", "3", "--recursive")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, "\t0:0.50:1:1:2:2"))
	assert.Equal(t, 4, engine.Calls())
}

func TestDetectCommandModelsDir(t *testing.T) {
	dir := isolate(t)
	fakeBridge(t)
	modelsDir := filepath.Join(dir, "zoo")
	require.NoError(t, os.MkdirAll(modelsDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "symbols.onnx"), []byte("m"), 0o600))
	img := writeImage(t, dir, "white.png")

	out, err := execute(t, "detect", "symbols", img, "--models-dir", modelsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "(no symbols)")

	out, err = execute(t, "models", "--models-dir", modelsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "symbols.onnx")
}

func TestBenchCommand(t *testing.T) {
	dir := isolate(t)
	engine := fakeBridge(t)
	img := writeImage(t, dir, "white.png")

	out, err := execute(t, "bench", testutil.TempModelFile(t), img, "-n", "5", "--warmup", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "detect 8x4x3: 5 iterations (0 failed)")
	assert.Equal(t, 7, engine.Calls())

	_, err = execute(t, "bench", testutil.TempModelFile(t), img, "--channels", "2")
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote spotit.yaml")
	assert.FileExists(t, filepath.Join(dir, "spotit.yaml"))

	_, err = execute(t, "config", "init")
	assert.Error(t, err)
	_, err = execute(t, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = execute(t, "config", "show", "--busy-policy", "fail")
	require.NoError(t, err)
	assert.Contains(t, out, "# loaded from")
	assert.Contains(t, out, "confidence_precision: 2")
	assert.Contains(t, out, "busy_policy: fail")
}

func TestConfigPaths(t *testing.T) {
	isolate(t)
	out, err := execute(t, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, out, "/etc/spotit")
}
