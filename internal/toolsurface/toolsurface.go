// Package toolsurface is the dispatcher behind `embranch-mcp serve`
// (C10): a minimal JSON-RPC-over-stdio loop that reads {name,
// arguments} requests line by line and dispatches them to Go methods on
// Server, which composes C1-C9. This is deliberately shallow -- no MCP
// framing niceties, no auth, no streaming -- mirroring the teacher's
// Request{Operation, Args}/Response{Success, Data, Error} protocol
// shape (internal/rpc/protocol.go) trimmed down to the tool-call shape
// an MCP client actually sends.
package toolsurface

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/embranch/embranch/internal/chroma"
	"github.com/embranch/embranch/internal/doltdriver"
	"github.com/embranch/embranch/internal/eerr"
	"github.com/embranch/embranch/internal/elog"
	"github.com/embranch/embranch/internal/syncengine"
	"github.com/embranch/embranch/internal/syncstate"
	"github.com/embranch/embranch/internal/toolresponse"
)

// Request is one {name, arguments} tool call.
type Request struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response carries the result of dispatching a Request.
type Response struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// readOnlyTools never receive a dmms_warning annotation (spec §4.9).
var readOnlyTools = map[string]bool{
	"list_collections": true,
	"get_documents":    true,
	"query_documents":  true,
	"dolt_status":      true,
	"sync_status":      true,
}

// Server composes C1-C9 and exposes the tool surface named in §4.10.
type Server struct {
	Driver    *doltdriver.Driver
	Chroma    *chroma.Gateway
	Engine    *syncengine.Engine
	SyncChk   *syncstate.Checker
	Root      string
	Remote    string
	Branch    string
}

type handlerFunc func(s *Server, ctx context.Context, args json.RawMessage) (any, error)

var handlers = map[string]handlerFunc{
	"list_collections":   (*Server).handleListCollections,
	"create_collection":  (*Server).handleCreateCollection,
	"delete_collection":  (*Server).handleDeleteCollection,
	"add_documents":      (*Server).handleAddDocuments,
	"query_documents":    (*Server).handleQueryDocuments,
	"get_documents":      (*Server).handleGetDocuments,
	"update_documents":   (*Server).handleUpdateDocuments,
	"delete_documents":   (*Server).handleDeleteDocuments,
	"dolt_status":        (*Server).handleDoltStatus,
	"dolt_push":          (*Server).handleDoltPush,
	"dolt_pull":          (*Server).handleDoltPull,
	"dolt_checkout":      (*Server).handleDoltCheckout,
	"sync_status":        (*Server).handleSyncStatus,
}

// Serve runs the stdio dispatch loop until in is closed or ctx is
// cancelled. Each line of in must be one JSON Request; one JSON
// Response is written to out per request.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(Response{Error: "invalid request: " + err.Error()})
			continue
		}
		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	h, ok := handlers[req.Name]
	if !ok {
		return Response{ID: req.ID, Error: "unknown tool: " + req.Name}
	}

	elog.Debugf("dispatching tool %s", req.Name)
	result, err := h(s, ctx, req.Arguments)
	if err != nil {
		return Response{ID: req.ID, Error: errorMessage(err)}
	}

	mutating := !readOnlyTools[req.Name]
	env := toolresponse.Wrap(ctx, s.SyncChk, mutating, result)
	return Response{ID: req.ID, Result: env}
}

func errorMessage(err error) string {
	if e, ok := eerr.As(err); ok {
		return string(e.Kind) + ": " + e.Error()
	}
	return err.Error()
}

// --- handlers -------------------------------------------------------

type listCollectionsArgs struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (s *Server) handleListCollections(ctx context.Context, args json.RawMessage) (any, error) {
	var a listCollectionsArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.Chroma.ListCollections(ctx, a.Limit, a.Offset)
}

type createCollectionArgs struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleCreateCollection(ctx context.Context, args json.RawMessage) (any, error) {
	var a createCollectionArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Name == "" {
		return nil, eerr.New(eerr.InvalidArgument, "name is required")
	}
	return nil, s.Chroma.CreateCollection(ctx, a.Name, a.Metadata)
}

type deleteCollectionArgs struct {
	Name string `json:"name"`
}

func (s *Server) handleDeleteCollection(ctx context.Context, args json.RawMessage) (any, error) {
	var a deleteCollectionArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	return nil, s.Chroma.DeleteCollection(ctx, a.Name)
}

type documentArgs struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type addDocumentsArgs struct {
	Collection string         `json:"collection"`
	Documents  []documentArgs `json:"documents"`
	Upsert     bool           `json:"upsert"`
}

func (s *Server) handleAddDocuments(ctx context.Context, args json.RawMessage) (any, error) {
	var a addDocumentsArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	docs := make([]chroma.Document, len(a.Documents))
	for i, d := range a.Documents {
		docs[i] = chroma.Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
	}
	return nil, s.Chroma.AddDocuments(ctx, a.Collection, docs, a.Upsert)
}

type queryDocumentsArgs struct {
	Collection    string         `json:"collection"`
	QueryTexts    []string       `json:"query_texts"`
	NResults      int            `json:"n_results"`
	Where         map[string]any `json:"where"`
	WhereDocument map[string]any `json:"where_document"`
}

func (s *Server) handleQueryDocuments(ctx context.Context, args json.RawMessage) (any, error) {
	var a queryDocumentsArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.Chroma.QueryDocuments(ctx, a.Collection, a.QueryTexts, a.NResults, a.Where, a.WhereDocument)
}

type getDocumentsArgs struct {
	Collection    string         `json:"collection"`
	IDs           []string       `json:"ids"`
	Where         map[string]any `json:"where"`
	WhereDocument map[string]any `json:"where_document"`
}

func (s *Server) handleGetDocuments(ctx context.Context, args json.RawMessage) (any, error) {
	var a getDocumentsArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.Chroma.GetDocuments(ctx, a.Collection, a.IDs, a.Where, a.WhereDocument)
}

type updateDocumentsArgs struct {
	Collection string         `json:"collection"`
	Documents  []documentArgs `json:"documents"`
}

func (s *Server) handleUpdateDocuments(ctx context.Context, args json.RawMessage) (any, error) {
	var a updateDocumentsArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	docs := make([]chroma.Document, len(a.Documents))
	for i, d := range a.Documents {
		docs[i] = chroma.Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
	}
	return nil, s.Chroma.UpdateDocuments(ctx, a.Collection, docs)
}

type deleteDocumentsArgs struct {
	Collection string   `json:"collection"`
	IDs        []string `json:"ids"`
}

func (s *Server) handleDeleteDocuments(ctx context.Context, args json.RawMessage) (any, error) {
	var a deleteDocumentsArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	return nil, s.Chroma.DeleteDocuments(ctx, a.Collection, a.IDs)
}

func (s *Server) handleDoltStatus(ctx context.Context, args json.RawMessage) (any, error) {
	res, err := s.Driver.Status(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

type remoteBranchArgs struct {
	Remote string `json:"remote"`
	Branch string `json:"branch"`
}

func (s *Server) handleDoltPush(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := s.defaultedRemoteBranch(ctx, args)
	if err != nil {
		return nil, err
	}
	outcome, err := s.Engine.ProcessPush(ctx, a.Remote, a.Branch)
	if err != nil {
		if e, ok := eerr.As(err); ok && e.Kind == eerr.Rejected {
			// A rejected push is a structured outcome, not a transport
			// failure: it is returned as a normal (non-error) result so
			// the caller sees the suggestions without the tool call
			// itself reporting failure.
			return map[string]any{
				"success": false,
				"error":   "REMOTE_REJECTED",
				"suggestions": []string{
					"Pull first to get remote changes",
					"Resolve conflicts, then retry the push",
				},
			}, nil
		}
		return nil, err
	}
	return outcome, nil
}

func (s *Server) handleDoltPull(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := s.defaultedRemoteBranch(ctx, args)
	if err != nil {
		return nil, err
	}
	err = s.Engine.ProcessPull(ctx, a.Remote, a.Branch)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

type checkoutArgs struct {
	Ref          string `json:"ref"`
	CreateBranch bool   `json:"create_branch"`
}

func (s *Server) handleDoltCheckout(ctx context.Context, args json.RawMessage) (any, error) {
	var a checkoutArgs
	if err := unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.Engine.ProcessCheckout(ctx, s.SyncChk, a.Ref, a.CreateBranch); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) handleSyncStatus(ctx context.Context, args json.RawMessage) (any, error) {
	return s.SyncChk.Check(ctx)
}

func (s *Server) defaultedRemoteBranch(ctx context.Context, args json.RawMessage) (remoteBranchArgs, error) {
	var a remoteBranchArgs
	_ = unmarshal(args, &a)
	if a.Remote == "" {
		a.Remote = s.Remote
	}
	if a.Branch == "" {
		a.Branch = s.Branch
	}
	if a.Branch == "" {
		b, err := s.Driver.CurrentBranch(ctx)
		if err != nil {
			return a, err
		}
		a.Branch = b
	}
	return a, nil
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eerr.Wrap(eerr.InvalidArgument, err, "parsing tool arguments")
	}
	return nil
}
