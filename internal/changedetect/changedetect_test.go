package changedetect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embranch/embranch/internal/chroma"
)

type fakeChroma struct {
	collections []chroma.Collection
	docs        map[string][]chroma.Document
}

func (f *fakeChroma) ListCollections(ctx context.Context, limit, offset int) ([]chroma.Collection, error) {
	return f.collections, nil
}

func (f *fakeChroma) GetDocuments(ctx context.Context, collection string, ids []string, where, whereDocument map[string]any) ([]chroma.Document, error) {
	return f.docs[collection], nil
}

type fakeSyncLog struct {
	synced map[Key]bool
}

func (f *fakeSyncLog) WasSynced(ctx context.Context, collection, id string) (bool, error) {
	return f.synced[Key{collection, id}], nil
}

func rows(rs ...DoltRow) func(ctx context.Context) ([]DoltRow, bool, error) {
	return func(ctx context.Context) ([]DoltRow, bool, error) { return rs, true, nil }
}

func TestDetectSchemaMissing(t *testing.T) {
	lc, err := Detect(context.Background(), nil, &fakeChroma{}, nil, func(ctx context.Context) ([]DoltRow, bool, error) {
		return nil, false, nil
	})
	require.NoError(t, err)
	require.True(t, lc.SchemaMissing)
}

func TestDetectAdded(t *testing.T) {
	cg := &fakeChroma{
		collections: []chroma.Collection{{Name: "notes"}},
		docs: map[string][]chroma.Document{
			"notes": {{ID: "a", Content: "hello"}},
		},
	}
	lc, err := Detect(context.Background(), nil, cg, nil, rows())
	require.NoError(t, err)
	require.Equal(t, []Key{{"notes", "a"}}, lc.Added)
	require.Empty(t, lc.Modified)
	require.Empty(t, lc.Deleted)
}

func TestDetectModified(t *testing.T) {
	cg := &fakeChroma{
		collections: []chroma.Collection{{Name: "notes"}},
		docs: map[string][]chroma.Document{
			"notes": {{ID: "a", Content: "new content", Metadata: map[string]any{"k": "v"}}},
		},
	}
	lc, err := Detect(context.Background(), nil, cg, nil, rows(DoltRow{
		Collection: "notes", ID: "a", Content: "old content", Metadata: map[string]any{"k": "v"},
	}))
	require.NoError(t, err)
	require.Equal(t, []Key{{"notes", "a"}}, lc.Modified)
	require.Empty(t, lc.Added)
}

func TestDetectUnchangedProducesNoDiff(t *testing.T) {
	cg := &fakeChroma{
		collections: []chroma.Collection{{Name: "notes"}},
		docs: map[string][]chroma.Document{
			"notes": {{ID: "a", Content: "same", Metadata: map[string]any{"x": 1.0}}},
		},
	}
	lc, err := Detect(context.Background(), nil, cg, nil, rows(DoltRow{
		Collection: "notes", ID: "a", Content: "same", Metadata: map[string]any{"x": 1.0},
	}))
	require.NoError(t, err)
	require.Empty(t, lc.Added)
	require.Empty(t, lc.Modified)
	require.Empty(t, lc.Deleted)
}

func TestDetectDeletedRespectsSyncLog(t *testing.T) {
	cg := &fakeChroma{collections: []chroma.Collection{{Name: "notes"}}}
	syncLog := &fakeSyncLog{synced: map[Key]bool{{"notes", "b"}: true}}

	lc, err := Detect(context.Background(), nil, cg, syncLog, rows(
		DoltRow{Collection: "notes", ID: "a", Content: "gone"},
		DoltRow{Collection: "notes", ID: "b", Content: "pulled-but-not-replayed"},
	))
	require.NoError(t, err)
	require.Equal(t, []Key{{"notes", "a"}}, lc.Deleted)
}

func TestDetectDeletedCollectionIsNotDocumentDeletion(t *testing.T) {
	cg := &fakeChroma{collections: []chroma.Collection{}}
	lc, err := Detect(context.Background(), nil, cg, nil, rows(
		DoltRow{Collection: "archived", ID: "a", Content: "x"},
	))
	require.NoError(t, err)
	require.Empty(t, lc.Deleted)
}
