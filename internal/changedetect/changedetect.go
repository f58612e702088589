// Package changedetect diffs the Chroma vector store against Dolt's
// `documents` table to produce LocalChanges (C6): documents added only
// to Chroma, documents whose content/metadata diverges, and documents
// that vanished from Chroma without the Dolt row having been dropped.
package changedetect

import (
	"context"
	"sort"

	"github.com/embranch/embranch/internal/chroma"
	"github.com/embranch/embranch/internal/doltdriver"
	"github.com/embranch/embranch/internal/eerr"
)

// Key identifies one document across both stores.
type Key struct {
	Collection string
	ID         string
}

// LocalChanges is the spec's ephemeral three-way diff.
type LocalChanges struct {
	Added    []Key
	Modified []Key
	Deleted  []Key

	// SchemaMissing is set when Dolt's documents table does not exist
	// yet (a fresh/empty repository); in that case the other fields are
	// always empty.
	SchemaMissing bool
}

// DoltRow mirrors one row of the persisted `documents` table.
type DoltRow struct {
	Collection string
	ID         string
	Content    string
	Metadata   map[string]any
}

// DoltReader is the slice of doltdriver this package needs, narrowed to
// an interface for testability.
type DoltReader interface {
	Query(ctx context.Context, sql string) (doltdriver.Result, error)
}

// ChromaReader is the slice of the Chroma gateway this package needs.
type ChromaReader interface {
	ListCollections(ctx context.Context, limit, offset int) ([]chroma.Collection, error)
	GetDocuments(ctx context.Context, collection string, ids []string, where, whereDocument map[string]any) ([]chroma.Document, error)
}

// SyncLogReader reports whether (collection, id) was recorded in
// sync_log, meaning a document absent from Chroma but present in Dolt
// may simply be one a remote pull has not replayed yet rather than a
// genuine local deletion.
type SyncLogReader interface {
	WasSynced(ctx context.Context, collection, id string) (bool, error)
}

// Detect computes LocalChanges by comparing every Chroma collection's
// documents against the corresponding Dolt rows.
func Detect(ctx context.Context, dolt DoltReader, chromaGW ChromaReader, syncLog SyncLogReader, doltRows func(ctx context.Context) ([]DoltRow, bool, error)) (LocalChanges, error) {
	rows, schemaPresent, err := doltRows(ctx)
	if err != nil {
		return LocalChanges{}, err
	}
	if !schemaPresent {
		return LocalChanges{SchemaMissing: true}, nil
	}

	doltByKey := map[Key]DoltRow{}
	for _, r := range rows {
		doltByKey[Key{r.Collection, r.ID}] = r
	}

	collections, err := chromaGW.ListCollections(ctx, 0, 0)
	if err != nil {
		return LocalChanges{}, eerr.Wrap(eerr.Internal, err, "listing chroma collections")
	}

	seenInChroma := map[Key]bool{}
	var added, modified []Key

	for _, col := range collections {
		docs, err := chromaGW.GetDocuments(ctx, col.Name, nil, nil, nil)
		if err != nil {
			return LocalChanges{}, eerr.Wrap(eerr.Internal, err, "getting chroma documents for diff")
		}
		for _, d := range docs {
			key := Key{col.Name, d.ID}
			seenInChroma[key] = true
			row, ok := doltByKey[key]
			if !ok {
				added = append(added, key)
				continue
			}
			if !documentsEqual(d, row) {
				modified = append(modified, key)
			}
		}
	}

	var deleted []Key
	liveCollections := map[string]bool{}
	for _, c := range collections {
		liveCollections[c.Name] = true
	}
	for key := range doltByKey {
		if seenInChroma[key] {
			continue
		}
		if !liveCollections[key.Collection] {
			continue // collection itself was deleted; not a document-level deletion
		}
		if syncLog != nil {
			synced, err := syncLog.WasSynced(ctx, key.Collection, key.ID)
			if err != nil {
				return LocalChanges{}, err
			}
			if synced {
				// Recorded by a prior sync (e.g. just pulled from a
				// remote) -- not yet reflected in Chroma, not a deletion.
				continue
			}
		}
		deleted = append(deleted, key)
	}

	sortKeys(added)
	sortKeys(modified)
	sortKeys(deleted)

	return LocalChanges{Added: added, Modified: modified, Deleted: deleted}, nil
}

func documentsEqual(d chroma.Document, row DoltRow) bool {
	if d.Content != row.Content {
		return false
	}
	return chroma.CanonicalMetadataJSON(d.Metadata) == chroma.CanonicalMetadataJSON(row.Metadata)
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Collection != keys[j].Collection {
			return keys[i].Collection < keys[j].Collection
		}
		return keys[i].ID < keys[j].ID
	})
}
