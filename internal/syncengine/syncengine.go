// Package syncengine orchestrates the two-store reconciliation (C7):
// flushing Chroma changes into Dolt and pushing, pulling and replaying
// remote changes into Chroma, and safe branch/commit checkouts.
package syncengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/embranch/embranch/internal/changedetect"
	"github.com/embranch/embranch/internal/chroma"
	"github.com/embranch/embranch/internal/doltdriver"
	"github.com/embranch/embranch/internal/eerr"
	"github.com/embranch/embranch/internal/manifest"
	"github.com/embranch/embranch/internal/pushresult"
	"github.com/embranch/embranch/internal/retry"
	"github.com/embranch/embranch/internal/syncstate"
)

// Invalidator is implemented by *syncstate.Checker; narrowed here so
// tests can use a stub.
type Invalidator interface {
	Invalidate()
}

// Engine wires C1 (Dolt), C3 (Chroma), C4 (manifest) and C6 (change
// detection) together.
type Engine struct {
	Driver   *doltdriver.Driver
	Chroma   *chroma.Gateway
	Root     string
	SyncChk  Invalidator
	DoltRows func(ctx context.Context) ([]changedetect.DoltRow, bool, error)
}

// PushOutcome reports what process_push accomplished.
type PushOutcome struct {
	Push           pushresult.Result
	ChangesWritten int
}

// ProcessPush flushes local Chroma changes into Dolt as a new commit,
// then pushes. A rejected push never alters local state.
func (e *Engine) ProcessPush(ctx context.Context, remote, branch string) (PushOutcome, error) {
	changes, err := changedetect.Detect(ctx, e.Driver, chromaReaderAdapter{e.Chroma}, nil, e.DoltRows)
	if err != nil {
		return PushOutcome{}, err
	}
	if changes.SchemaMissing {
		return PushOutcome{}, eerr.New(eerr.SchemaMissing, "documents table does not exist yet")
	}

	total := len(changes.Added) + len(changes.Modified) + len(changes.Deleted)
	if total > 0 {
		if err := e.writeChangesToDolt(ctx, changes); err != nil {
			return PushOutcome{}, err
		}
		msg := commitMessage(len(changes.Added), len(changes.Modified), len(changes.Deleted))
		if _, err := e.Driver.Commit(ctx, msg); err != nil {
			return PushOutcome{}, err
		}
		e.SyncChk.Invalidate()
	}

	var res doltdriver.Result
	var pr pushresult.Result
	err = retry.Do(ctx, retry.Policy{}, func() error {
		var rerr error
		res, rerr = e.Driver.Push(ctx, remote, branch)
		if rerr != nil {
			return rerr
		}
		pr = pushresult.Classify(res.Success, res.Output, res.ErrOut)
		if pr.Kind == pushresult.NetworkError {
			return eerr.Newf(eerr.NetworkError, "network error pushing to remote: %s", pr.Message)
		}
		return nil
	})
	if err != nil {
		return PushOutcome{}, err
	}

	if pr.Kind == pushresult.Rejected {
		return PushOutcome{Push: pr, ChangesWritten: total}, eerr.New(eerr.Rejected, "remote rejected the push").
			WithAction("Pull first to get remote changes, then retry the push")
	}

	commit := pr.To
	b := branch
	if commit != "" {
		if err := e.updateManifestAfterWrite(ctx, &commit, &b); err != nil {
			return PushOutcome{}, err
		}
	}
	e.SyncChk.Invalidate()

	return PushOutcome{Push: pr, ChangesWritten: total}, nil
}

// ProcessPull fetches, fast-forwards or merges, and replays the
// resulting Dolt diff into Chroma.
func (e *Engine) ProcessPull(ctx context.Context, remote, branch string) error {
	before, _, err := e.DoltRows(ctx)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, retry.Policy{}, func() error {
		if _, ferr := e.Driver.Fetch(ctx, remote); ferr != nil {
			return ferr
		}
		res, perr := e.Driver.Pull(ctx, remote, branch)
		if perr != nil {
			return perr
		}
		if !res.Success && strings.Contains(strings.ToLower(res.ErrOut), "conflict") {
			return eerr.New(eerr.Conflict, "merge conflict during pull").
				WithAction("resolve the conflict, commit, then retry")
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.SyncChk.Invalidate()

	after, _, err := e.DoltRows(ctx)
	if err != nil {
		return err
	}
	if err := e.replayDiff(ctx, before, after); err != nil {
		return err
	}

	if err := e.updateManifestAfterWrite(ctx, nil, &branch); err != nil {
		return err
	}
	e.SyncChk.Invalidate()
	return nil
}

// ProcessCheckout switches Dolt to ref, then reconciles Chroma by
// diffing the pre/post `documents` snapshots.
func (e *Engine) ProcessCheckout(ctx context.Context, chk *syncstate.Checker, ref string, createBranch bool) error {
	state, err := chk.Check(ctx)
	if err != nil {
		return err
	}
	if state.HasLocalChanges {
		return eerr.New(eerr.Conflict, "uncommitted local changes; commit or stash before checking out").
			WithAction("commit local changes, then retry")
	}

	before, _, err := e.DoltRows(ctx)
	if err != nil {
		return err
	}

	if _, err := e.Driver.Checkout(ctx, ref, createBranch); err != nil {
		return err
	}
	e.SyncChk.Invalidate()

	after, _, err := e.DoltRows(ctx)
	if err != nil {
		return err
	}
	return e.replayDiff(ctx, before, after)
}

func (e *Engine) writeChangesToDolt(ctx context.Context, changes changedetect.LocalChanges) error {
	for _, key := range changes.Added {
		docs, err := e.Chroma.GetDocuments(ctx, key.Collection, []string{key.ID}, nil, nil)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := e.upsertDoltRow(ctx, key.Collection, d); err != nil {
				return err
			}
		}
	}
	for _, key := range changes.Modified {
		docs, err := e.Chroma.GetDocuments(ctx, key.Collection, []string{key.ID}, nil, nil)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := e.upsertDoltRow(ctx, key.Collection, d); err != nil {
				return err
			}
		}
	}
	for _, key := range changes.Deleted {
		sql := fmt.Sprintf("DELETE FROM documents WHERE collection = '%s' AND id = '%s'",
			escape(key.Collection), escape(key.ID))
		if _, err := e.Driver.Execute(ctx, sql); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) upsertDoltRow(ctx context.Context, collection string, d chroma.Document) error {
	metaJSON := "{}"
	if len(d.Metadata) > 0 {
		metaJSON = jsonOrEmpty(d.Metadata)
	}
	sql := fmt.Sprintf(
		`REPLACE INTO documents (id, collection, content, metadata_json, updated_at) VALUES ('%s', '%s', '%s', '%s', UTC_TIMESTAMP(6))`,
		escape(d.ID), escape(collection), escape(d.Content), escapeJSON(metaJSON))
	_, err := e.Driver.Execute(ctx, sql)
	return err
}

// replayDiff applies the delta between before/after Dolt snapshots onto
// Chroma: added rows -> add_documents, removed rows -> delete_documents,
// changed rows -> update_documents (upsert semantics).
func (e *Engine) replayDiff(ctx context.Context, before, after []changedetect.DoltRow) error {
	beforeByKey := map[changedetect.Key]changedetect.DoltRow{}
	for _, r := range before {
		beforeByKey[changedetect.Key{Collection: r.Collection, ID: r.ID}] = r
	}
	afterByKey := map[changedetect.Key]changedetect.DoltRow{}
	for _, r := range after {
		afterByKey[changedetect.Key{Collection: r.Collection, ID: r.ID}] = r
	}

	byCollectionAdd := map[string][]chroma.Document{}
	byCollectionUpdate := map[string][]chroma.Document{}
	byCollectionDelete := map[string][]string{}

	for key, row := range afterByKey {
		prev, existed := beforeByKey[key]
		doc := chroma.Document{ID: row.ID, Content: row.Content, Metadata: row.Metadata}
		if !existed {
			byCollectionAdd[key.Collection] = append(byCollectionAdd[key.Collection], doc)
			continue
		}
		if prev.Content != row.Content || jsonOrEmpty(prev.Metadata) != jsonOrEmpty(row.Metadata) {
			byCollectionUpdate[key.Collection] = append(byCollectionUpdate[key.Collection], doc)
		}
	}
	for key := range beforeByKey {
		if _, stillThere := afterByKey[key]; !stillThere {
			byCollectionDelete[key.Collection] = append(byCollectionDelete[key.Collection], key.ID)
		}
	}

	for col, docs := range byCollectionAdd {
		if err := e.Chroma.AddDocuments(ctx, col, docs, true); err != nil {
			return err
		}
	}
	for col, docs := range byCollectionUpdate {
		if err := e.Chroma.UpdateDocuments(ctx, col, docs); err != nil {
			return err
		}
	}
	for col, ids := range byCollectionDelete {
		if err := e.Chroma.DeleteDocuments(ctx, col, ids); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) updateManifestAfterWrite(ctx context.Context, commit, branch *string) error {
	m, err := manifest.Read(e.Root)
	if err != nil {
		return err
	}
	if m == nil {
		return eerr.New(eerr.NotInitialized, "no manifest present")
	}
	if commit == nil {
		if c, cerr := e.Driver.HeadCommitHash(ctx); cerr == nil {
			commit = &c
		}
	}
	return manifest.UpdateDoltState(e.Root, m, commit, branch)
}

func commitMessage(added, modified, deleted int) string {
	return fmt.Sprintf("embranch: sync +%d ~%d -%d", added, modified, deleted)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// escapeJSON escapes a JSON-encoded value for embedding in a SQL string
// literal: backslashes must be doubled before quotes (§6), since a
// trailing backslash from an escaped JSON string (e.g. `\\`, `\"`,
// `\uXXXX`) would otherwise swallow the closing quote.
func escapeJSON(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", "''")
}

func jsonOrEmpty(m map[string]any) string {
	return chroma.CanonicalMetadataJSON(m)
}

// chromaReaderAdapter adapts *chroma.Gateway to changedetect.ChromaReader.
type chromaReaderAdapter struct {
	g *chroma.Gateway
}

func (c chromaReaderAdapter) ListCollections(ctx context.Context, limit, offset int) ([]chroma.Collection, error) {
	return c.g.ListCollections(ctx, limit, offset)
}

func (c chromaReaderAdapter) GetDocuments(ctx context.Context, collection string, ids []string, where, whereDocument map[string]any) ([]chroma.Document, error) {
	return c.g.GetDocuments(ctx, collection, ids, where, whereDocument)
}
