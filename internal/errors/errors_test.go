package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanErrorFormatting(t *testing.T) {
	err := NewScanErrorWithTarget(CodeScanFailed, "probe batch failed", "127.0.0.1")
	assert.Equal(t, "[SCAN_FAILED] probe batch failed (target: 127.0.0.1)", err.Error())

	err = NewScanError(CodeTimeout, "scan timed out")
	assert.Equal(t, "[TIMEOUT] scan timed out", err.Error())
}

func TestScanErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := WrapScanError(CodeScanFailed, "probe failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestProcessErrorFormatting(t *testing.T) {
	err := NewProcessError(CodeStateConflict, "process is already running", "server")
	assert.Equal(t, "[STATE_CONFLICT] process is already running (process: server)", err.Error())
}

func TestToolErrorStderr(t *testing.T) {
	err := NewToolError(CodeSubprocess, "scan failed", "nmap").WithStderr("nmap: bad flag")
	assert.Equal(t, "nmap: bad flag", err.Stderr)
	assert.Contains(t, err.Error(), "tool: nmap")
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"scan error", NewScanError(CodeScanFailed, "x"), CodeScanFailed},
		{"process error", ErrAlreadyRunning("tunnel"), CodeStateConflict},
		{"tool error", ErrToolNotFound("tailscale"), CodeToolUnavailable},
		{"config error", NewConfigError(CodeConfiguration, "x"), CodeConfiguration},
		{"plain error", fmt.Errorf("plain"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsUnavailable(ErrToolNotFound("nmap")))
	assert.False(t, IsUnavailable(NewScanError(CodeTimeout, "x")))

	assert.True(t, IsStateConflict(ErrNotRunning("server")))
	assert.True(t, IsStateConflict(ErrAlreadyRunning("server")))
	assert.False(t, IsStateConflict(fmt.Errorf("other")))
}
