// Package chroma is the gateway onto the embedded Chroma vector store
// (C3). Chroma's embedded runtime is not safe for concurrent access, so
// every operation is funneled through a single goroutine "actor" that
// owns the runtime exclusively -- a generalization of the teacher's
// single-owner, channel-serialized patterns (internal/rpc's bus goroutine)
// applied here to a non-RPC domain. Callers never see the underlying
// client; results are plain data so no runtime-specific object can leak
// across the channel boundary.
package chroma

import (
	"context"
	"encoding/json"

	"github.com/embranch/embranch/internal/eerr"
)

// Document mirrors the spec's Document entity as plain data.
type Document struct {
	ID         string
	Content    string
	Metadata   map[string]any
	Embedding  []float32
}

// Collection mirrors the spec's Collection entity.
type Collection struct {
	Name                  string
	Metadata              map[string]any
	EmbeddingFunctionName string
}

// EmbeddingFunc computes embeddings for a batch of texts. It is
// injected at construction and never hard-coded, per the spec's
// non-goal on embedding function choice.
type EmbeddingFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Backend is the minimal surface the actor needs from the underlying
// Chroma client. It exists so the concurrency and migration-shim logic
// in this file stays independent of which concrete client library is
// wired in (see backend_chromago.go).
type Backend interface {
	ListCollections(ctx context.Context, limit, offset int) ([]Collection, error)
	CreateCollection(ctx context.Context, name string, metadata map[string]any) error
	DeleteCollection(ctx context.Context, name string) error
	AddDocuments(ctx context.Context, collection string, docs []Document, upsert bool) error
	QueryDocuments(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]any) ([][]Document, error)
	GetDocuments(ctx context.Context, collection string, ids []string, where, whereDocument map[string]any) ([]Document, error)
	UpdateDocuments(ctx context.Context, collection string, docs []Document) error
	DeleteDocuments(ctx context.Context, collection string, ids []string) error
	CollectionCount(ctx context.Context, collection string) (int, error)

	// NeedsTypeMigration/ApplyTypeMigration implement the legacy `_type`
	// compatibility shim (spec §4.3): detect a pre-`_type` database and
	// inject the field into every collection's configuration row,
	// non-destructively and idempotently.
	NeedsTypeMigration(ctx context.Context) (bool, error)
	ApplyTypeMigration(ctx context.Context) error
}

type job struct {
	fn   func(ctx context.Context) (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// Gateway is the actor: a goroutine owning Backend exclusively, fed by
// a bounded admission channel.
type Gateway struct {
	backend Backend
	embed   EmbeddingFunc
	jobs    chan job
	done    chan struct{}
}

// QueueDepth is the default bound on pending admissions (spec §5
// backpressure); a full queue yields Busy rather than blocking forever.
const QueueDepth = 64

// New starts the actor goroutine and runs the one-shot `_type` migration
// shim before accepting any client call.
func New(ctx context.Context, backend Backend, embed EmbeddingFunc) (*Gateway, error) {
	g := &Gateway{
		backend: backend,
		embed:   embed,
		jobs:    make(chan job, QueueDepth),
		done:    make(chan struct{}),
	}
	go g.loop()

	if needs, err := backend.NeedsTypeMigration(ctx); err != nil {
		return nil, eerr.Wrap(eerr.Internal, err, "checking for legacy chroma database")
	} else if needs {
		if _, err := g.submit(ctx, func(ctx context.Context) (any, error) {
			return nil, backend.ApplyTypeMigration(ctx)
		}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Gateway) loop() {
	for j := range g.jobs {
		v, err := j.fn(context.Background())
		j.resp <- result{val: v, err: err}
	}
	close(g.done)
}

// Close stops accepting new work and waits for the actor to drain.
func (g *Gateway) Close() {
	close(g.jobs)
	<-g.done
}

// submit enqueues fn, failing fast with Busy if the admission queue is
// already full rather than waiting for a slot to free up (§5/§4.3: a
// full queue is backpressure, not something callers should block on).
func (g *Gateway) submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	resp := make(chan result, 1)
	select {
	case g.jobs <- job{fn: fn, resp: resp}:
	default:
		return nil, eerr.New(eerr.Busy, "chroma gateway queue is full")
	}
	select {
	case r := <-resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, eerr.Wrap(eerr.TimedOut, ctx.Err(), "waiting for chroma gateway")
	}
}

func (g *Gateway) ListCollections(ctx context.Context, limit, offset int) ([]Collection, error) {
	v, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return g.backend.ListCollections(ctx, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Collection), nil
}

func (g *Gateway) CreateCollection(ctx context.Context, name string, metadata map[string]any) error {
	_, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return nil, g.backend.CreateCollection(ctx, name, metadata)
	})
	return err
}

func (g *Gateway) DeleteCollection(ctx context.Context, name string) error {
	_, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return nil, g.backend.DeleteCollection(ctx, name)
	})
	return err
}

// AddDocuments embeds any documents missing a precomputed Embedding
// (via the injected EmbeddingFunc) before handing them to the backend.
func (g *Gateway) AddDocuments(ctx context.Context, collection string, docs []Document, upsert bool) error {
	if err := g.ensureEmbeddings(ctx, docs); err != nil {
		return err
	}
	_, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return nil, g.backend.AddDocuments(ctx, collection, docs, upsert)
	})
	return err
}

func (g *Gateway) ensureEmbeddings(ctx context.Context, docs []Document) error {
	if g.embed == nil {
		return nil
	}
	var missingIdx []int
	var texts []string
	for i, d := range docs {
		if d.Embedding == nil {
			missingIdx = append(missingIdx, i)
			texts = append(texts, d.Content)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	vecs, err := g.embed(ctx, texts)
	if err != nil {
		return eerr.Wrap(eerr.Internal, err, "computing embeddings")
	}
	if len(vecs) != len(texts) {
		return eerr.New(eerr.Internal, "embedding function returned wrong vector count")
	}
	for i, idx := range missingIdx {
		docs[idx].Embedding = vecs[i]
	}
	return nil
}

func (g *Gateway) QueryDocuments(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]any) ([][]Document, error) {
	if nResults <= 0 {
		nResults = 5
	}
	v, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return g.backend.QueryDocuments(ctx, collection, queryTexts, nResults, where, whereDocument)
	})
	if err != nil {
		return nil, err
	}
	return v.([][]Document), nil
}

func (g *Gateway) GetDocuments(ctx context.Context, collection string, ids []string, where, whereDocument map[string]any) ([]Document, error) {
	v, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return g.backend.GetDocuments(ctx, collection, ids, where, whereDocument)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Document), nil
}

func (g *Gateway) UpdateDocuments(ctx context.Context, collection string, docs []Document) error {
	if err := g.ensureEmbeddings(ctx, docs); err != nil {
		return err
	}
	_, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return nil, g.backend.UpdateDocuments(ctx, collection, docs)
	})
	return err
}

func (g *Gateway) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	_, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return nil, g.backend.DeleteDocuments(ctx, collection, ids)
	})
	return err
}

func (g *Gateway) CollectionCount(ctx context.Context, collection string) (int, error) {
	v, err := g.submit(ctx, func(ctx context.Context) (any, error) {
		return g.backend.CollectionCount(ctx, collection)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// CanonicalMetadataJSON is exported for internal/changedetect (C6) and
// internal/syncengine (C7): encoding/json sorts map keys on marshal, so
// canonicalisation is simply "marshal, then compare the compact bytes",
// giving a comparison stable regardless of map iteration order.
func CanonicalMetadataJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
