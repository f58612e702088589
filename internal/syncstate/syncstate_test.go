package syncstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embranch/embranch/internal/doltdriver"
	"github.com/embranch/embranch/internal/manifest"
)

type fakeReader struct {
	branch       string
	commit       string
	statusOut    string
	queryResult  string
	computeCalls int
}

func (f *fakeReader) CurrentBranch(ctx context.Context) (string, error) { return f.branch, nil }
func (f *fakeReader) HeadCommitHash(ctx context.Context) (string, error) {
	return f.commit, nil
}
func (f *fakeReader) Status(ctx context.Context) (doltdriver.Result, error) {
	f.computeCalls++
	return doltdriver.Result{Success: true, Output: f.statusOut}, nil
}
func (f *fakeReader) Query(ctx context.Context, sql string) (doltdriver.Result, error) {
	return doltdriver.Result{Success: true, Output: f.queryResult}, nil
}

func TestCheckInSyncCleanTree(t *testing.T) {
	root := t.TempDir()
	commit := "abcd123"
	branch := "main"
	_, err := manifest.CreateDefault(root, nil, "main", manifest.InitAuto)
	require.NoError(t, err)
	m, err := manifest.Read(root)
	require.NoError(t, err)
	require.NoError(t, manifest.UpdateDoltState(root, m, &commit, &branch))

	reader := &fakeReader{branch: "main", commit: "abcd123", statusOut: "working tree clean"}
	c := &Checker{driver: reader, root: root}

	r, err := c.Check(context.Background())
	require.NoError(t, err)
	require.True(t, r.InSync)
	require.False(t, r.HasLocalChanges)
}

func TestCheckDetectsLocalChanges(t *testing.T) {
	root := t.TempDir()
	commit := "abcd123"
	branch := "main"
	_, err := manifest.CreateDefault(root, nil, "main", manifest.InitAuto)
	require.NoError(t, err)
	m, err := manifest.Read(root)
	require.NoError(t, err)
	require.NoError(t, manifest.UpdateDoltState(root, m, &commit, &branch))

	reader := &fakeReader{branch: "main", commit: "abcd123", statusOut: "Changes not staged for commit"}
	c := &Checker{driver: reader, root: root}

	r, err := c.Check(context.Background())
	require.NoError(t, err)
	require.False(t, r.InSync)
	require.True(t, r.HasLocalChanges)
}

func TestCheckCachesUntilInvalidated(t *testing.T) {
	root := t.TempDir()
	_, err := manifest.CreateDefault(root, nil, "main", manifest.InitAuto)
	require.NoError(t, err)

	reader := &fakeReader{branch: "main", statusOut: "working tree clean"}
	c := &Checker{driver: reader, root: root}

	_, err = c.Check(context.Background())
	require.NoError(t, err)
	_, err = c.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, reader.computeCalls)

	c.Invalidate()
	_, err = c.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, reader.computeCalls)
}

func TestCheckNoManifestReturnsNotInitialized(t *testing.T) {
	root := t.TempDir()
	reader := &fakeReader{}
	c := &Checker{driver: reader, root: root}

	_, err := c.Check(context.Background())
	require.Error(t, err)
}
