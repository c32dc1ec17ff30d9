package pipeline

import (
	"testing"

	"github.com/evsieve/evsieve/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileHappyPath(t *testing.T) {
	argv := []string{
		"--input", "/dev/input/event0", "grab=force", "persist=reopen",
		"--map", "key:a", "key:b",
		"--output", "name=evsieve-test",
	}

	prog, err := Compile(argv)
	require.NoError(t, err)
	require.Len(t, prog.Inputs, 1)
	assert.Equal(t, []string{"/dev/input/event0"}, prog.Inputs[0].Paths)
	assert.Equal(t, GrabForce, prog.Inputs[0].Grab)
	assert.Equal(t, PersistReopen, prog.Inputs[0].Persist)

	require.Len(t, prog.Stages, 2)
	_, isMap := prog.Stages[0].(*stage.Map)
	assert.True(t, isMap)

	require.Len(t, prog.Outputs, 1)
	assert.Equal(t, "evsieve-test", prog.Outputs[0].DeviceName)
}

func TestCompileFoldsErrorsAcrossClauses(t *testing.T) {
	argv := []string{
		"--input",
		"--map", "not a valid predicate~~",
		"--bogus-flag",
	}

	_, err := Compile(argv)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "--input")
}

func TestCompileRejectsBarePositionalArgBeforeFirstFlag(t *testing.T) {
	argv := []string{
		"/dev/input/event0",
		"--input", "/dev/input/event0",
		"--output",
	}

	_, err := Compile(argv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/input/event0")
}

func TestCompileRejectsUnknownPrintFormat(t *testing.T) {
	argv := []string{
		"--input", "/dev/input/event0",
		"--print", "format=hex",
		"--output",
	}

	_, err := Compile(argv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestCompileRequiresAtLeastOneInputAndOutput(t *testing.T) {
	_, err := Compile(nil)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "--input")
	assert.Contains(t, msg, "--output")
}

func TestCompileBindsWithholdToPrecedingHooks(t *testing.T) {
	argv := []string{
		"--input", "/dev/input/event0",
		"--hook", "key:leftctrl", "key:leftshift", "send-key=key:a",
		"--withhold",
		"--output",
	}

	prog, err := Compile(argv)
	require.NoError(t, err)

	require.Len(t, prog.Stages, 2, "the hook and withhold clauses must collapse into one HookWithhold stage, followed by the output")
	_, isHookWithhold := prog.Stages[0].(*stage.HookWithhold)
	assert.True(t, isHookWithhold)
}

func TestCompileWithholdWithoutPrecedingHookIsAnError(t *testing.T) {
	argv := []string{
		"--input", "/dev/input/event0",
		"--withhold",
		"--output",
	}

	_, err := Compile(argv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--withhold")
}

func TestCompileToggleReferenceByID(t *testing.T) {
	argv := []string{
		"--input", "/dev/input/event0",
		"--toggle", "key:capslock", "id=mytoggle", "key:a", "key:b",
		"--hook", "key:leftctrl", "toggle=mytoggle",
		"--output",
	}

	prog, err := Compile(argv)
	require.NoError(t, err)
	require.Len(t, prog.Toggles, 1)

	var hook *stage.Hook
	for _, s := range prog.Stages {
		if h, ok := s.(*stage.Hook); ok {
			hook = h
		}
	}
	require.NotNil(t, hook)
	require.Len(t, hook.Toggles, 1)
	assert.Same(t, prog.Toggles[0], hook.Toggles[0].Target)
}

func TestCompileUnknownToggleIDIsAnError(t *testing.T) {
	argv := []string{
		"--input", "/dev/input/event0",
		"--hook", "key:leftctrl", "toggle=nosuchid",
		"--output",
	}

	_, err := Compile(argv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nosuchid")
}

func TestCompileBareToggleIndexOutOfRange(t *testing.T) {
	argv := []string{
		"--input", "/dev/input/event0",
		"--toggle", "key:capslock", "key:a", "key:b",
		"--hook", "key:leftctrl", "toggle=:5",
		"--output",
	}

	_, err := Compile(argv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index out of range")
}
