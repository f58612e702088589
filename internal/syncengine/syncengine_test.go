package syncengine

import "testing"

import "github.com/stretchr/testify/require"

func TestCommitMessageFormat(t *testing.T) {
	require.Equal(t, "embranch: sync +2 ~1 -3", commitMessage(2, 1, 3))
	require.Equal(t, "embranch: sync +0 ~0 -0", commitMessage(0, 0, 0))
}

func TestEscapeSingleQuotes(t *testing.T) {
	require.Equal(t, "O''Brien", escape("O'Brien"))
	require.Equal(t, "no quotes", escape("no quotes"))
}

func TestJSONOrEmptyStableAcrossMapOrder(t *testing.T) {
	a := jsonOrEmpty(map[string]any{"b": 2, "a": 1})
	b := jsonOrEmpty(map[string]any{"a": 1, "b": 2})
	require.Equal(t, a, b)
	require.Equal(t, "{}", jsonOrEmpty(nil))
}
