package probe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("10.500000\n")
	require.NoError(t, err)
	assert.Equal(t, 10500*time.Millisecond, d)

	_, err = ParseDuration("N/A")
	assert.Error(t, err)
	_, err = ParseDuration("")
	assert.Error(t, err)
	_, err = ParseDuration("abc")
	assert.Error(t, err)
}

func TestFFProbe_RunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a unix shell")
	}
	bin := filepath.Join(t.TempDir(), "ffprobe")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 1.500000\n"), 0o755))

	d, err := NewFFProbe(bin).Probe(context.Background(), []byte("audio"), "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestFFProbe_MissingBinary(t *testing.T) {
	_, err := NewFFProbe(filepath.Join(t.TempDir(), "nope")).Probe(context.Background(), []byte("a"), "audio/webm")
	assert.Error(t, err)
}
