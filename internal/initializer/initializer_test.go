package initializer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x INT);\n\nCREATE TABLE b (y INT);\n")
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "CREATE TABLE a")
	require.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "commit", firstNonEmpty("", "commit", "branch"))
	require.Equal(t, "", firstNonEmpty("", ""))
}
