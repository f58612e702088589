package chroma

import (
	"context"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"

	"github.com/embranch/embranch/internal/eerr"
)

// ChromaGoBackend adapts the amikos-tech/chroma-go client to the
// Backend interface. It is the one place in this package that knows
// about chroma-go's concrete API; everything else in the package deals
// only in the plain Document/Collection data types.
type ChromaGoBackend struct {
	client chromago.Client
}

// NewChromaGoBackend opens (or creates) an embedded Chroma database
// rooted at dataPath.
func NewChromaGoBackend(ctx context.Context, dataPath string) (*ChromaGoBackend, error) {
	client, err := chromago.NewPersistentClient(dataPath)
	if err != nil {
		return nil, eerr.Wrap(eerr.Internal, err, "opening chroma database")
	}
	return &ChromaGoBackend{client: client}, nil
}

func (b *ChromaGoBackend) ListCollections(ctx context.Context, limit, offset int) ([]Collection, error) {
	cols, err := b.client.ListCollections(ctx, chromago.WithListLimit(limit), chromago.WithListOffset(offset))
	if err != nil {
		return nil, eerr.Wrap(eerr.Internal, err, "listing collections")
	}
	out := make([]Collection, 0, len(cols))
	for _, c := range cols {
		out = append(out, Collection{
			Name:     c.Name(),
			Metadata: metadataToMap(c.Metadata()),
		})
	}
	return out, nil
}

func (b *ChromaGoBackend) CreateCollection(ctx context.Context, name string, metadata map[string]any) error {
	_, err := b.client.GetOrCreateCollection(ctx, name, chromago.WithCollectionMetadataCreate(mapToMetadata(metadata)))
	if err != nil {
		return eerr.Wrap(eerr.Internal, err, fmt.Sprintf("creating collection %q", name))
	}
	return nil
}

func (b *ChromaGoBackend) DeleteCollection(ctx context.Context, name string) error {
	if err := b.client.DeleteCollection(ctx, name); err != nil {
		return eerr.Wrap(eerr.NotFound, err, fmt.Sprintf("deleting collection %q", name))
	}
	return nil
}

func (b *ChromaGoBackend) collection(ctx context.Context, name string) (chromago.Collection, error) {
	col, err := b.client.GetCollection(ctx, name)
	if err != nil {
		return nil, eerr.Wrap(eerr.NotFound, err, fmt.Sprintf("collection %q not found", name))
	}
	return col, nil
}

func (b *ChromaGoBackend) AddDocuments(ctx context.Context, collection string, docs []Document, upsert bool) error {
	col, err := b.collection(ctx, collection)
	if err != nil {
		return err
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	metas := make([]chromago.DocumentMetadata, len(docs))
	embeddings := make([][]float32, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		texts[i] = d.Content
		metas[i] = mapToMetadata(d.Metadata)
		embeddings[i] = d.Embedding
	}

	opts := []chromago.CollectionAddOption{
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithMetadatas(metas...),
		chromago.WithEmbeddings(embeddings...),
	}
	if upsert {
		return errToEErr(col.Upsert(ctx, opts...), "upserting documents")
	}
	return errToEErr(col.Add(ctx, opts...), "adding documents")
}

func (b *ChromaGoBackend) QueryDocuments(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]any) ([][]Document, error) {
	col, err := b.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	opts := []chromago.CollectionQueryOption{
		chromago.WithQueryTexts(queryTexts...),
		chromago.WithNResults(nResults),
	}
	if where != nil {
		opts = append(opts, chromago.WithWhereMap(where))
	}
	if whereDocument != nil {
		opts = append(opts, chromago.WithWhereDocumentMap(whereDocument))
	}

	res, err := col.Query(ctx, opts...)
	if err != nil {
		return nil, eerr.Wrap(eerr.Internal, err, "querying documents")
	}

	groups := res.GetIDGroups()
	out := make([][]Document, len(groups))
	for gi, ids := range groups {
		docsInGroup := make([]Document, len(ids))
		contentGroup := res.GetDocumentsGroups()[gi]
		metaGroup := res.GetMetadatasGroups()[gi]
		for i, id := range ids {
			docsInGroup[i] = Document{
				ID:       string(id),
				Content:  string(contentGroup[i]),
				Metadata: metadataToMap(metaGroup[i]),
			}
		}
		out[gi] = docsInGroup
	}
	return out, nil
}

func (b *ChromaGoBackend) GetDocuments(ctx context.Context, collection string, ids []string, where, whereDocument map[string]any) ([]Document, error) {
	col, err := b.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	opts := []chromago.CollectionGetOption{}
	if len(ids) > 0 {
		opts = append(opts, chromago.WithIDsGet(ids...))
	}
	if where != nil {
		opts = append(opts, chromago.WithWhereMapGet(where))
	}
	if whereDocument != nil {
		opts = append(opts, chromago.WithWhereDocumentMapGet(whereDocument))
	}

	res, err := col.Get(ctx, opts...)
	if err != nil {
		return nil, eerr.Wrap(eerr.Internal, err, "getting documents")
	}

	gotIDs := res.GetIDs()
	contents := res.GetDocuments()
	metas := res.GetMetadatas()
	out := make([]Document, len(gotIDs))
	for i, id := range gotIDs {
		out[i] = Document{
			ID:       string(id),
			Content:  string(contents[i]),
			Metadata: metadataToMap(metas[i]),
		}
	}
	return out, nil
}

func (b *ChromaGoBackend) UpdateDocuments(ctx context.Context, collection string, docs []Document) error {
	col, err := b.collection(ctx, collection)
	if err != nil {
		return err
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	metas := make([]chromago.DocumentMetadata, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		texts[i] = d.Content
		metas[i] = mapToMetadata(d.Metadata)
	}

	return errToEErr(col.Update(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithMetadatas(metas...),
	), "updating documents")
}

func (b *ChromaGoBackend) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	col, err := b.collection(ctx, collection)
	if err != nil {
		return err
	}
	return errToEErr(col.Delete(ctx, chromago.WithIDsDelete(ids...)), "deleting documents")
}

func (b *ChromaGoBackend) CollectionCount(ctx context.Context, collection string) (int, error) {
	col, err := b.collection(ctx, collection)
	if err != nil {
		return 0, err
	}
	n, err := col.Count(ctx)
	if err != nil {
		return 0, eerr.Wrap(eerr.Internal, err, "counting documents")
	}
	return n, nil
}

// legacyTypeConfigKey is the configuration field Chroma databases
// created before the `_type` tagging scheme lack.
const legacyTypeConfigKey = "_type"

func (b *ChromaGoBackend) NeedsTypeMigration(ctx context.Context) (bool, error) {
	cols, err := b.client.ListCollections(ctx)
	if err != nil {
		return false, eerr.Wrap(eerr.Internal, err, "inspecting chroma database for migration")
	}
	for _, c := range cols {
		if _, ok := metadataToMap(c.Metadata())[legacyTypeConfigKey]; !ok {
			return true, nil
		}
	}
	return false, nil
}

func (b *ChromaGoBackend) ApplyTypeMigration(ctx context.Context) error {
	cols, err := b.client.ListCollections(ctx)
	if err != nil {
		return eerr.Wrap(eerr.Internal, err, "listing collections for migration")
	}
	for _, c := range cols {
		meta := metadataToMap(c.Metadata())
		if _, ok := meta[legacyTypeConfigKey]; ok {
			continue
		}
		meta[legacyTypeConfigKey] = "collection"
		if err := c.ModifyMetadata(ctx, mapToMetadata(meta)); err != nil {
			return eerr.Wrap(eerr.Internal, err, fmt.Sprintf("migrating collection %q", c.Name()))
		}
	}
	return nil
}

func errToEErr(err error, action string) error {
	if err == nil {
		return nil
	}
	return eerr.Wrap(eerr.Internal, err, action)
}

func metadataToMap(m chromago.CollectionMetadata) map[string]any {
	out := map[string]any{}
	if m == nil {
		return out
	}
	for k, v := range m.AsMap() {
		out[k] = v
	}
	return out
}

func mapToMetadata(m map[string]any) chromago.DocumentMetadata {
	meta, _ := chromago.NewDocumentMetadataFromMap(m)
	return meta
}
