package detector

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "ModelLoadError", KindModelLoad.String())
	assert.Equal(t, "InvalidHandleError", KindInvalidHandle.String())
	assert.Equal(t, "InvalidInputError", KindInvalidInput.String())
	assert.Equal(t, "InferenceError", KindInference.String())
	assert.Equal(t, "BusyError", KindBusy.String())
	assert.Equal(t, "Error", KindUnknown.String())
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(KindInvalidInput, "detect", "width must be > 0")
	assert.Equal(t, "InvalidInputError: detect: width must be > 0", err.Error())

	err = &Error{Kind: KindBusy}
	assert.Equal(t, "BusyError: detector busy", err.Error())
}

func TestErrorIsAndAs(t *testing.T) {
	cause := errors.New("disk on fire")
	err := fmt.Errorf("outer: %w", &Error{Kind: KindModelLoad, Op: "init", Err: cause})

	require.ErrorIs(t, err, ErrModelLoad)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInference)
	assert.Equal(t, KindModelLoad, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(cause))
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(KindInference, "detect", nil))

	plain := Wrap(KindInference, "detect", errors.New("x"))
	assert.Equal(t, KindInference, KindOf(plain))

	already := Errorf(KindBusy, "detect", "in use")
	assert.Same(t, already, Wrap(KindInference, "detect", already))
}
