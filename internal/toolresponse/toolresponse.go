// Package toolresponse wraps tool results with a sync-state warning
// (C9). Every mutating tool response consults the sync-state checker
// (C5); if local state has diverged from the manifest, the response is
// annotated with a dmms_warning so the caller sees it without the
// underlying tool call itself failing. Read-only/status tools are never
// annotated.
package toolresponse

import (
	"context"

	"github.com/embranch/embranch/internal/elog"
	"github.com/embranch/embranch/internal/syncstate"
)

// Warning is attached to a tool response when local and manifest state
// diverge.
type Warning struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	LocalState     string `json:"local_state"`
	ManifestState  string `json:"manifest_state"`
	ActionRequired string `json:"action_required"`
}

// Envelope wraps an arbitrary tool result with an optional Warning.
type Envelope struct {
	Result       any      `json:"result"`
	DMMSWarning  *Warning `json:"dmms_warning,omitempty"`
}

// Wrap consults chk and attaches a Warning if mutating is true and the
// checker reports an out-of-sync state. A failure of the sync-state
// check itself never fails the wrapped tool call: it is logged and the
// response is returned unannotated.
func Wrap(ctx context.Context, chk *syncstate.Checker, mutating bool, result any) Envelope {
	if !mutating || chk == nil {
		return Envelope{Result: result}
	}

	state, err := chk.Check(ctx)
	if err != nil {
		elog.Warnf("sync-state check failed, returning unannotated response: %v", err)
		return Envelope{Result: result}
	}
	if state.InSync {
		return Envelope{Result: result}
	}

	return Envelope{
		Result: result,
		DMMSWarning: &Warning{
			Type:           "out_of_sync",
			Message:        state.Reason,
			LocalState:     state.LocalBranch + "@" + state.LocalCommit,
			ManifestState:  state.ManifestBranch + "@" + state.ManifestCommit,
			ActionRequired: actionFor(state),
		},
	}
}

func actionFor(state syncstate.Result) string {
	switch {
	case state.HasLocalChanges:
		return "commit local changes, then retry"
	case state.LocalAheadOfManifest:
		return "push local changes to advance the manifest, or pull to reconcile"
	default:
		return "run sync pull to reconcile with the manifest"
	}
}
