package doltdriver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCappedWriterTruncates(t *testing.T) {
	var buf bytes.Buffer
	w := capped(&buf, 8)
	n, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n) // Write always reports the full input length
	require.Equal(t, "01234567", buf.String())
}

func TestCappedWriterStopsAtLimit(t *testing.T) {
	var buf bytes.Buffer
	w := capped(&buf, 4)
	_, _ = w.Write([]byte("ab"))
	_, _ = w.Write([]byte("cd"))
	_, _ = w.Write([]byte("ef"))
	require.Equal(t, "abcd", buf.String())
}

func TestNewDefaults(t *testing.T) {
	d := New("", "/tmp/repo", 0)
	require.Equal(t, "dolt", d.Executable)
	require.Equal(t, 60_000_000_000, int(d.Timeout))
}

func TestParseRemotesDedupesFetchAndPush(t *testing.T) {
	out := "origin  https://dolthub.com/org/repo (fetch)\n" +
		"origin  https://dolthub.com/org/repo (push)\n" +
		"backup   https://example.com/backup.git (fetch)\n"

	remotes := parseRemotes(out)
	require.Len(t, remotes, 2)
	require.Equal(t, "origin", remotes[0].Name)
	require.Equal(t, "https://dolthub.com/org/repo", remotes[0].Fetch)
	require.Equal(t, "https://dolthub.com/org/repo", remotes[0].Push)
	require.Equal(t, "backup", remotes[1].Name)
}

func TestParseRemotesSkipsMalformedLines(t *testing.T) {
	out := "not-a-remote-line\n\norigin https://x (fetch)\n"
	remotes := parseRemotes(out)
	require.Len(t, remotes, 1)
	require.Equal(t, "origin", remotes[0].Name)
}
