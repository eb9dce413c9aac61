package testutil

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/spotit/internal/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestTempModelFile(t *testing.T) {
	p := TempModelFile(t)
	assert.True(t, FileExists(p))
	assert.Equal(t, "model.onnx", filepath.Base(p))
}

func TestFakeEngine(t *testing.T) {
	f := NewFakeEngine(1, 2, 3)
	in := onnx.Tensor{Data: []float32{0.5}, Shape: []int64{1, 1, 1, 1}}

	out, err := f.Run(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, out)
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, in, f.LastInput())

	f.Err = errors.New("boom")
	_, err = f.Run(in)
	require.EqualError(t, err, "boom")
	assert.Equal(t, 2, f.Calls())

	require.NoError(t, f.Close())
	assert.True(t, f.Closed())
	_, err = f.Run(in)
	require.Error(t, err)
}

func TestImages(t *testing.T) {
	assert.Equal(t, []byte{7, 7, 7, 7}, SolidImage(2, 2, 1, 7))
	assert.Equal(t, []byte{0, 1, 1, 2}, GradientImage(2, 1, 2))
}
