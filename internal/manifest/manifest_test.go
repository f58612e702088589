package manifest

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateDefaultThenRead(t *testing.T) {
	root := t.TempDir()
	url := "https://dolthub.com/org/repo"

	m, err := CreateDefault(root, &url, "", InitAuto)
	require.NoError(t, err)
	require.Equal(t, "main", m.Dolt.DefaultBranch)

	got, err := Read(root)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, url, *got.Dolt.RemoteURL)
	require.Equal(t, InitAuto, got.InitMode)
}

func TestReadMissingReturnsNil(t *testing.T) {
	m, err := Read(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestUnknownFieldsPreserved(t *testing.T) {
	root := t.TempDir()
	_, err := CreateDefault(root, nil, "main", InitManual)
	require.NoError(t, err)

	data, err := os.ReadFile(Path(root))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["future_field"] = json.RawMessage(`"from-a-newer-binary"`)
	rewritten, err := json.MarshalIndent(raw, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(Path(root), rewritten, 0o600))

	m, err := Read(root)
	require.NoError(t, err)
	require.NoError(t, UpdateDoltState(root, m, nil, nil))

	data, err = os.ReadFile(Path(root))
	require.NoError(t, err)
	require.Contains(t, string(data), "future_field")
}

func TestUpdateDoltState(t *testing.T) {
	root := t.TempDir()
	m, err := CreateDefault(root, nil, "main", InitAuto)
	require.NoError(t, err)

	commit := "def5678"
	branch := "main"
	require.NoError(t, UpdateDoltState(root, m, &commit, &branch))

	got, err := Read(root)
	require.NoError(t, err)
	require.Equal(t, commit, *got.Dolt.CurrentCommit)
	require.Equal(t, branch, *got.Dolt.CurrentBranch)
}
