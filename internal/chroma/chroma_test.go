package chroma

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	collections   map[string]Collection
	docs          map[string][]Document
	needsMigrate  bool
	migrated      bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		collections: map[string]Collection{},
		docs:        map[string][]Document{},
	}
}

func (f *fakeBackend) ListCollections(ctx context.Context, limit, offset int) ([]Collection, error) {
	out := make([]Collection, 0, len(f.collections))
	for _, c := range f.collections {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) CreateCollection(ctx context.Context, name string, metadata map[string]any) error {
	f.collections[name] = Collection{Name: name, Metadata: metadata}
	return nil
}

func (f *fakeBackend) DeleteCollection(ctx context.Context, name string) error {
	delete(f.collections, name)
	delete(f.docs, name)
	return nil
}

func (f *fakeBackend) AddDocuments(ctx context.Context, collection string, docs []Document, upsert bool) error {
	f.docs[collection] = append(f.docs[collection], docs...)
	return nil
}

func (f *fakeBackend) QueryDocuments(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]any) ([][]Document, error) {
	return [][]Document{f.docs[collection]}, nil
}

func (f *fakeBackend) GetDocuments(ctx context.Context, collection string, ids []string, where, whereDocument map[string]any) ([]Document, error) {
	return f.docs[collection], nil
}

func (f *fakeBackend) UpdateDocuments(ctx context.Context, collection string, docs []Document) error {
	return nil
}

func (f *fakeBackend) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	return nil
}

func (f *fakeBackend) CollectionCount(ctx context.Context, collection string) (int, error) {
	return len(f.docs[collection]), nil
}

func (f *fakeBackend) NeedsTypeMigration(ctx context.Context) (bool, error) {
	return f.needsMigrate, nil
}

func (f *fakeBackend) ApplyTypeMigration(ctx context.Context) error {
	f.migrated = true
	return nil
}

func TestNewRunsMigrationWhenNeeded(t *testing.T) {
	backend := newFakeBackend()
	backend.needsMigrate = true

	g, err := New(context.Background(), backend, nil)
	require.NoError(t, err)
	defer g.Close()

	require.True(t, backend.migrated)
}

func TestAddDocumentsComputesMissingEmbeddings(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.CreateCollection(context.Background(), "notes", nil))

	calls := 0
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 2, 3}
		}
		return out, nil
	}

	g, err := New(context.Background(), backend, embed)
	require.NoError(t, err)
	defer g.Close()

	docs := []Document{{ID: "a", Content: "hello"}, {ID: "b", Content: "world", Embedding: []float32{9}}}
	require.NoError(t, g.AddDocuments(context.Background(), "notes", docs, false))

	require.Equal(t, 1, calls)
	require.Equal(t, []float32{1, 2, 3}, backend.docs["notes"][0].Embedding)
	require.Equal(t, []float32{9}, backend.docs["notes"][1].Embedding)
}

func TestGatewayRoundtrip(t *testing.T) {
	backend := newFakeBackend()
	g, err := New(context.Background(), backend, nil)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.CreateCollection(context.Background(), "notes", map[string]any{"k": "v"}))
	cols, err := g.ListCollections(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, cols, 1)

	require.NoError(t, g.DeleteCollection(context.Background(), "notes"))
	cols, err = g.ListCollections(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, cols, 0)
}
