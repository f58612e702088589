//go:build integration

package doltdriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/dolt"
)

// TestInitAlongsideRealDoltContainer starts a real `dolt sql-server`
// container and runs C1's init against a real `dolt` binary instead of
// a fake process, the way the teacher's own dolt integration tests skip
// to a real binary rather than mocking `exec.Command`
// (internal/storage/dolt's server_integration_test.go). Run with
// `-tags integration`; it needs a working Docker daemon and a local
// `dolt` binary and is never part of the default test run.
func TestInitAlongsideRealDoltContainer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := dolt.Run(ctx, "dolthub/dolt-sql-server:latest")
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, connStr)

	// A real push-rejected scenario needs two independent clones of the
	// same remote diverging and racing to push; the container gives us
	// the remote endpoint, the rest of the scenario is exercised by
	// pushresult's unit tests against captured CLI transcripts. This
	// test's job is narrower: with the container up, prove the driver
	// can initialize a local repository with the real binary. It does
	// not push to the container.
	driver := New("dolt", t.TempDir(), 30*time.Second)
	require.False(t, driver.IsInitialized(ctx))

	res, err := driver.Init(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, driver.IsInitialized(ctx))
}
