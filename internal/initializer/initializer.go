// Package initializer runs the startup decision tree (C8) that
// reconciles a local Dolt working copy with the project manifest: clone
// when there is nothing local yet, checkout when it's safe, or mark the
// workstation PendingConfiguration rather than ever auto-initializing
// an empty repository that would block a later clone.
package initializer

import (
	"context"
	"strings"

	"github.com/embranch/embranch/internal/doltdriver"
	"github.com/embranch/embranch/internal/eerr"
	"github.com/embranch/embranch/internal/elog"
	"github.com/embranch/embranch/internal/manifest"
	"github.com/embranch/embranch/internal/syncstate"
)

// Status is the outcome of a startup Run.
type Status string

const (
	StatusDone                Status = "DONE"
	StatusPendingConfig       Status = "PENDING_CONFIGURATION"
	StatusOutOfSync           Status = "OUT_OF_SYNC"
	StatusCheckedOut          Status = "CHECKED_OUT"
	StatusCloned              Status = "CLONED"
)

// schemaDDL is applied once, on `init` only (never on clone, which
// inherits the remote's already-migrated schema).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
  id            VARCHAR(255) NOT NULL,
  collection    VARCHAR(255) NOT NULL,
  content       LONGTEXT NOT NULL,
  metadata_json JSON,
  updated_at    DATETIME(6) NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS sync_log (
  id         VARCHAR(64) NOT NULL PRIMARY KEY,
  collection VARCHAR(255) NOT NULL,
  op         VARCHAR(16) NOT NULL,
  at         DATETIME(6) NOT NULL
);
CREATE TABLE IF NOT EXISTS schema_version (
  version    INT NOT NULL,
  applied_at DATETIME(6) NOT NULL
);
`

// Initializer runs the C8 decision tree once at startup.
type Initializer struct {
	Driver  *doltdriver.Driver
	Root    string
	SyncChk *syncstate.Checker

	RemoteURLEnv  string // DOLT_REMOTE_URL, seed for a newly created manifest only
	DefaultBranch string
}

// Run executes the decision tree and returns the resulting Status.
func (i *Initializer) Run(ctx context.Context) (Status, error) {
	m, err := manifest.Read(i.Root)
	if err != nil {
		return "", err
	}

	if m == nil {
		var seed *string
		if i.RemoteURLEnv != "" {
			seed = &i.RemoteURLEnv
		}
		m, err = manifest.CreateDefault(i.Root, seed, i.DefaultBranch, manifest.InitAuto)
		if err != nil {
			return "", err
		}
		elog.Infof("created default manifest at %s", manifest.Path(i.Root))
	}

	localExists := i.Driver.IsInitialized(ctx)

	if !localExists {
		if m.Dolt.RemoteURL == nil || *m.Dolt.RemoteURL == "" {
			elog.Infof("no local repo and no remote configured; entering PendingConfiguration")
			return StatusPendingConfig, nil
		}
		return i.cloneAndCheckout(ctx, m)
	}

	i.SyncChk.Invalidate()
	state, err := i.SyncChk.Check(ctx)
	if err != nil {
		return "", err
	}
	if state.InSync {
		return StatusDone, nil
	}

	safe := !state.HasLocalChanges && !state.LocalAheadOfManifest
	if safe && m.InitMode == manifest.InitAuto {
		ref := firstNonEmpty(derefStr(m.Dolt.CurrentCommit), derefStr(m.Dolt.CurrentBranch))
		if ref == "" {
			return StatusDone, nil
		}
		if _, err := i.Driver.Checkout(ctx, ref, false); err != nil {
			return "", err
		}
		i.SyncChk.Invalidate()
		return StatusCheckedOut, nil
	}

	elog.Warnf("local state diverges from manifest (%s); leaving local state untouched", state.Reason)
	return StatusOutOfSync, nil
}

func (i *Initializer) cloneAndCheckout(ctx context.Context, m *manifest.Manifest) (Status, error) {
	ref := firstNonEmpty(derefStr(m.Dolt.CurrentCommit), derefStr(m.Dolt.CurrentBranch))
	res, err := i.Driver.Clone(ctx, *m.Dolt.RemoteURL, derefStr(m.Dolt.CurrentBranch), derefStr(m.Dolt.CurrentCommit))
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", eerr.Newf(eerr.Internal, "cloning %s failed: %s", *m.Dolt.RemoteURL, res.ErrOut)
	}
	i.SyncChk.Invalidate()
	_ = ref
	return StatusCloned, nil
}

// Init runs `dolt init` and applies the schema bootstrap DDL, tagging
// the result with a schema_version row the way a migration tracker
// would, so later runs can tell the schema has already been applied.
func (i *Initializer) Init(ctx context.Context) error {
	res, err := i.Driver.Init(ctx)
	if err != nil {
		return err
	}
	if !res.Success {
		return eerr.Newf(eerr.Internal, "dolt init failed: %s", res.ErrOut)
	}
	for _, stmt := range splitStatements(schemaDDL) {
		if _, err := i.Driver.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := i.Driver.Execute(ctx, "INSERT INTO schema_version (version, applied_at) VALUES (1, UTC_TIMESTAMP(6))"); err != nil {
		return err
	}
	i.SyncChk.Invalidate()
	return nil
}

// IsEmpty implements the emptiness heuristic governing force-clone
// safety: at most two commits, no documents rows, no non-schema user
// tables.
func (i *Initializer) IsEmpty(ctx context.Context) (bool, error) {
	logRes, err := i.Driver.Log(ctx, 3)
	if err != nil {
		return false, err
	}
	commitCount := strings.Count(logRes.Output, "commit ")
	if commitCount > 2 {
		return false, nil
	}

	countRes, err := i.Driver.Query(ctx, "SELECT COUNT(*) FROM documents")
	if err != nil {
		return false, err
	}
	if countRes.Success && !strings.Contains(countRes.Output, "\n0") {
		// documents table exists and has rows.
		return false, nil
	}
	if !countRes.Success && !strings.Contains(strings.ToLower(countRes.ErrOut), "not found") {
		// The query failed for a reason other than a missing table, so
		// we conservatively treat the repo as non-empty.
		return false, nil
	}

	tablesRes, err := i.Driver.Query(ctx, "SHOW TABLES")
	if err != nil {
		return false, err
	}
	knownSchemaTables := map[string]bool{"documents": true, "sync_log": true, "schema_version": true}
	for _, line := range strings.Split(tablesRes.Output, "\n")[1:] {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		if !knownSchemaTables[name] {
			return false, nil
		}
	}
	return true, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func splitStatements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
