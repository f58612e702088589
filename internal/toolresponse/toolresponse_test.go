package toolresponse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embranch/embranch/internal/syncstate"
)

func TestWrapReadOnlySkipsCheck(t *testing.T) {
	env := Wrap(context.Background(), nil, false, map[string]any{"ok": true})
	require.Nil(t, env.DMMSWarning)
}

func TestWrapNilCheckerSkips(t *testing.T) {
	env := Wrap(context.Background(), nil, true, "result")
	require.Nil(t, env.DMMSWarning)
	require.Equal(t, "result", env.Result)
}

func TestActionForLocalChanges(t *testing.T) {
	require.Equal(t, "commit local changes, then retry", actionFor(syncstate.Result{HasLocalChanges: true}))
}

func TestActionForAhead(t *testing.T) {
	require.Equal(t, "push local changes to advance the manifest, or pull to reconcile",
		actionFor(syncstate.Result{LocalAheadOfManifest: true}))
}

func TestActionForDefault(t *testing.T) {
	require.Equal(t, "run sync pull to reconcile with the manifest", actionFor(syncstate.Result{}))
}
