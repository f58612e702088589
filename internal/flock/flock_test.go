package flock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")

	l1, err := TryAcquire(path)
	require.NoError(t, err)
	defer l1.Release()

	_, err = TryAcquire(path)
	require.ErrorIs(t, err, ErrBusy)
}

func TestAcquireReleaseRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	l2, err := TryAcquire(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
