// Package syncstate computes and caches whether the local Dolt working
// copy agrees with the project manifest (C5). The cache is keyed by a
// monotonic generation counter rather than wall-clock time, avoiding
// the staleness bugs that plague TTL-based caches when the underlying
// clock is adjusted or the process is suspended.
package syncstate

import (
	"context"
	"strings"
	"sync"

	"github.com/embranch/embranch/internal/doltdriver"
	"github.com/embranch/embranch/internal/eerr"
	"github.com/embranch/embranch/internal/manifest"
)

// Result is the ephemeral SyncStateCheckResult of spec §3.
type Result struct {
	InSync               bool
	HasLocalChanges      bool
	LocalAheadOfManifest bool
	LocalBranch          string
	LocalCommit          string
	ManifestBranch       string
	ManifestCommit       string
	Reason               string
}

// headReader is the slice of *doltdriver.Driver this package needs,
// narrowed to an interface so the cache-generation logic can be
// exercised with a fake in tests without spawning a real dolt process.
type headReader interface {
	CurrentBranch(ctx context.Context) (string, error)
	HeadCommitHash(ctx context.Context) (string, error)
	Status(ctx context.Context) (doltdriver.Result, error)
	Query(ctx context.Context, sql string) (doltdriver.Result, error)
}

// Checker computes Result, caching it until Invalidate is called by any
// write-path operation.
type Checker struct {
	driver headReader
	root   string

	mu         sync.Mutex
	generation uint64
	cached     *Result
	cachedGen  uint64
}

func New(driver *doltdriver.Driver, root string) *Checker {
	return &Checker{driver: driver, root: root}
}

// Invalidate bumps the generation counter, meaning any subsequently
// completed Check recomputes rather than returning a cached Result.
// Must be called by every C1 call that may mutate HEAD (checkout,
// commit, pull, merge, reset, init, clone) and by every manifest write.
func (c *Checker) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
}

// Check returns the current sync state, recomputing only if the
// generation has advanced since the last call.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	c.mu.Lock()
	gen := c.generation
	if c.cached != nil && c.cachedGen == gen {
		r := *c.cached
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	r, err := c.compute(ctx)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	if gen == c.generation {
		cp := r
		c.cached = &cp
		c.cachedGen = gen
	}
	c.mu.Unlock()
	return r, nil
}

func (c *Checker) compute(ctx context.Context) (Result, error) {
	m, err := manifest.Read(c.root)
	if err != nil {
		return Result{}, err
	}
	if m == nil {
		return Result{}, eerr.New(eerr.NotInitialized, "no manifest present")
	}

	localBranch, err := c.driver.CurrentBranch(ctx)
	if err != nil {
		return Result{}, err
	}
	localCommit, err := c.driver.HeadCommitHash(ctx)
	if err != nil {
		if e, ok := eerr.As(err); ok && e.Kind == eerr.NotFound {
			localCommit = ""
		} else {
			return Result{}, err
		}
	}

	statusRes, err := c.driver.Status(ctx)
	if err != nil {
		return Result{}, err
	}
	hasLocalChanges := statusHasChanges(statusRes.Output)

	manifestBranch := derefStr(m.Dolt.CurrentBranch)
	manifestCommit := derefStr(m.Dolt.CurrentCommit)

	branchesAgree := manifestBranch == localBranch
	commitsAgree := manifestCommit == localCommit
	inSync := branchesAgree && commitsAgree

	localAhead := false
	if !commitsAgree && manifestCommit != "" && localCommit != "" {
		ancestor, aerr := c.driver.Query(ctx, ancestorQuery(manifestCommit, localCommit))
		if aerr == nil && ancestor.Success && strings.Contains(ancestor.Output, "1") {
			localAhead = true
		}
	}

	reason := "in sync"
	switch {
	case !branchesAgree:
		reason = "local branch differs from manifest"
	case !commitsAgree && localAhead:
		reason = "local commit is ahead of manifest"
	case !commitsAgree:
		reason = "local commit differs from manifest"
	case hasLocalChanges:
		reason = "working tree has uncommitted changes"
		inSync = false
	}

	return Result{
		InSync:               inSync && !hasLocalChanges,
		HasLocalChanges:      hasLocalChanges,
		LocalAheadOfManifest: localAhead,
		LocalBranch:          localBranch,
		LocalCommit:          localCommit,
		ManifestBranch:       manifestBranch,
		ManifestCommit:       manifestCommit,
		Reason:               reason,
	}, nil
}

func statusHasChanges(output string) bool {
	return !strings.Contains(strings.ToLower(output), "working tree clean") &&
		!strings.Contains(strings.ToLower(output), "nothing to commit")
}

// ancestorQuery checks whether `from` is an ancestor of `to` using
// Dolt's dolt_commit_ancestor table function.
func ancestorQuery(from, to string) string {
	return "SELECT COUNT(*) FROM dolt_commit_ancestor('" + escapeLiteral(from) + "', '" + escapeLiteral(to) + "') AS a WHERE a.is_ancestor = 1"
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
