// Package doltdriver spawns the external `dolt` executable and
// normalizes its output into a uniform result. It never classifies
// success beyond exit code and captured output; semantic classification
// (push results, conflict detection) belongs to the callers (C2,
// internal/syncengine). This mirrors the process-spawning idiom found
// in the pack's dolt_coordinator (exec.Command("dolt", ...) plus
// CombinedOutput/TrimSpace) generalized to a CLI-per-invocation model
// rather than a long-lived dolt sql-server.
package doltdriver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/embranch/embranch/internal/eerr"
	"github.com/embranch/embranch/internal/elog"
)

// maxCapturedOutput bounds how much of stdout/stderr is retained per
// invocation, so a runaway subprocess cannot exhaust memory.
const maxCapturedOutput = 1 << 20 // 1 MiB

var tracer = otel.Tracer("github.com/embranch/embranch/internal/doltdriver")

// Result is the uniform shape every driver call returns.
type Result struct {
	Success  bool
	Output   string
	ErrOut   string
	ExitCode int
}

// Driver runs `dolt` as a subprocess rooted at RepoPath.
type Driver struct {
	Executable string
	RepoPath   string
	Timeout    time.Duration

	mu        sync.Mutex // guards the write path (§5): at most one mutating call at a time
	available atomic.Int32 // 0=unknown, 1=yes, 2=no
}

const (
	availUnknown int32 = iota
	availYes
	availNo
)

// New constructs a Driver. executable defaults to "dolt" (resolved via
// PATH) and timeout defaults to 60s, matching DOLT_EXECUTABLE_PATH and
// DOLT_COMMAND_TIMEOUT's defaults.
func New(executable, repoPath string, timeout time.Duration) *Driver {
	if executable == "" {
		executable = "dolt"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Driver{Executable: executable, RepoPath: repoPath, Timeout: timeout}
}

func (d *Driver) run(ctx context.Context, span string, args ...string) (Result, error) {
	ctx, sp := tracer.Start(ctx, "dolt."+span, trace.WithAttributes(
		attribute.String("dolt.repo_path", d.RepoPath),
	))
	defer sp.End()

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Executable, args...)
	cmd.Dir = d.RepoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = capped(&stdout, maxCapturedOutput)
	cmd.Stderr = capped(&stderr, maxCapturedOutput)

	elog.Debugf("dolt %s: exec %v", span, args)
	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, eerr.Newf(eerr.TimedOut, "dolt %s timed out after %s", span, d.Timeout)
	}

	res := Result{
		Output: stdout.String(),
		ErrOut: stderr.String(),
	}
	if err == nil {
		res.Success = true
		return res, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		res.Success = false
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	return Result{}, eerr.Wrap(eerr.Internal, err, fmt.Sprintf("launching dolt %s", span))
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func capped(buf *bytes.Buffer, limit int) io.Writer {
	return &cappedWriter{buf: buf, limit: limit}
}

type cappedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

// Available reports whether the configured dolt executable can be
// invoked at all, caching the result of the first probe.
func (d *Driver) Available(ctx context.Context) bool {
	switch d.available.Load() {
	case availYes:
		return true
	case availNo:
		return false
	}
	_, err := exec.LookPath(d.Executable)
	if err != nil {
		d.available.Store(availNo)
		return false
	}
	res, err := d.run(ctx, "version", "version")
	if err != nil || !res.Success {
		d.available.Store(availNo)
		return false
	}
	d.available.Store(availYes)
	return true
}

// IsInitialized reports whether RepoPath already contains a .dolt
// directory (i.e. dolt status succeeds).
func (d *Driver) IsInitialized(ctx context.Context) bool {
	res, err := d.run(ctx, "status", "status")
	return err == nil && res.Success
}

func (d *Driver) lockWrite() func() {
	d.mu.Lock()
	return d.mu.Unlock
}

// Init runs `dolt init`.
func (d *Driver) Init(ctx context.Context) (Result, error) {
	defer d.lockWrite()()
	return d.run(ctx, "init", "init")
}

// Clone runs `dolt clone`, optionally checking out a branch or commit
// immediately after.
func (d *Driver) Clone(ctx context.Context, url, branch, commit string) (Result, error) {
	defer d.lockWrite()()
	args := []string{"clone", url, "."}
	res, err := d.run(ctx, "clone", args...)
	if err != nil || !res.Success {
		return res, err
	}
	ref := branch
	if ref == "" {
		ref = commit
	}
	if ref == "" {
		return res, nil
	}
	return d.checkoutLocked(ctx, ref, false)
}

// Checkout switches to ref, optionally creating a new branch.
func (d *Driver) Checkout(ctx context.Context, ref string, createBranch bool) (Result, error) {
	defer d.lockWrite()()
	return d.checkoutLocked(ctx, ref, createBranch)
}

func (d *Driver) checkoutLocked(ctx context.Context, ref string, createBranch bool) (Result, error) {
	args := []string{"checkout"}
	if createBranch {
		args = append(args, "-b")
	}
	args = append(args, ref)
	return d.run(ctx, "checkout", args...)
}

// Commit runs `dolt commit -Am message` (stages every table, including
// newly created ones, before committing).
func (d *Driver) Commit(ctx context.Context, message string) (Result, error) {
	defer d.lockWrite()()
	return d.run(ctx, "commit", "commit", "-Am", message)
}

// Status runs `dolt status`.
func (d *Driver) Status(ctx context.Context) (Result, error) {
	return d.run(ctx, "status", "status")
}

// Log runs `dolt log -n limit`.
func (d *Driver) Log(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		limit = 10
	}
	return d.run(ctx, "log", "log", "-n", fmt.Sprint(limit))
}

var detachedHeadRe = regexp.MustCompile(`(?i)detached`)

// CurrentBranch returns the checked-out branch name, or "" if the
// repository is in detached HEAD state.
func (d *Driver) CurrentBranch(ctx context.Context) (string, error) {
	res, err := d.run(ctx, "branch_current", "branch", "--show-current")
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", eerr.Newf(eerr.Internal, "dolt branch --show-current failed: %s", res.ErrOut)
	}
	name := strings.TrimSpace(res.Output)
	if name == "" {
		return "", nil
	}
	statusRes, err := d.Status(ctx)
	if err == nil && statusRes.Success && detachedHeadRe.MatchString(statusRes.Output) {
		return "", nil
	}
	return name, nil
}

// HeadCommitHash returns the current HEAD commit hash.
func (d *Driver) HeadCommitHash(ctx context.Context) (string, error) {
	res, err := d.run(ctx, "head_hash", "sql", "-q", "SELECT hashof('HEAD') AS h", "-r", "csv")
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", eerr.Newf(eerr.Internal, "reading HEAD commit hash: %s", res.ErrOut)
	}
	lines := strings.Split(strings.TrimSpace(res.Output), "\n")
	if len(lines) < 2 {
		return "", eerr.New(eerr.NotFound, "repository has no commits yet")
	}
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// Remote describes one configured Dolt remote.
type Remote struct {
	Name  string
	Fetch string
	Push  string
}

var remoteLineFields = regexp.MustCompile(`\s+`)

// ListRemotes parses `dolt remote -v`, splitting on any whitespace run
// since observed builds emit space-aligned rather than tab-separated
// columns; malformed lines are skipped and fetch/push rows for the same
// name are merged into one Remote.
func (d *Driver) ListRemotes(ctx context.Context) ([]Remote, error) {
	res, err := d.run(ctx, "remote", "remote", "-v")
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, eerr.Newf(eerr.Internal, "dolt remote -v failed: %s", res.ErrOut)
	}
	return parseRemotes(res.Output), nil
}

// parseRemotes is the pure parsing core of ListRemotes, split out so it
// can be tested without spawning a dolt process.
func parseRemotes(output string) []Remote {
	byName := map[string]*Remote{}
	var order []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := remoteLineFields.Split(line, -1)
		if len(fields) < 2 {
			continue
		}
		name, url := fields[0], fields[1]
		r, ok := byName[name]
		if !ok {
			r = &Remote{Name: name}
			byName[name] = r
			order = append(order, name)
		}
		if len(fields) >= 3 && strings.Contains(fields[2], "push") {
			r.Push = url
		} else {
			r.Fetch = url
			if r.Push == "" {
				r.Push = url
			}
		}
	}

	out := make([]Remote, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// Pull runs `dolt pull remote branch`.
func (d *Driver) Pull(ctx context.Context, remote, branch string) (Result, error) {
	defer d.lockWrite()()
	return d.run(ctx, "pull", "pull", remote, branch)
}

// Push runs `dolt push [--force] remote branch`.
func (d *Driver) Push(ctx context.Context, remote, branch string, force bool) (Result, error) {
	defer d.lockWrite()()
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, remote, branch)
	return d.run(ctx, "push", args...)
}

// Fetch runs `dolt fetch remote`.
func (d *Driver) Fetch(ctx context.Context, remote string) (Result, error) {
	defer d.lockWrite()()
	return d.run(ctx, "fetch", "fetch", remote)
}

// Merge runs `dolt merge ref`.
func (d *Driver) Merge(ctx context.Context, ref string) (Result, error) {
	defer d.lockWrite()()
	return d.run(ctx, "merge", "merge", ref)
}

// ResetMode selects `dolt reset`'s mode flag.
type ResetMode string

const (
	ResetSoft ResetMode = "--soft"
	ResetHard ResetMode = "--hard"
	ResetMixed ResetMode = "--mixed"
)

// Reset runs `dolt reset <mode> ref`.
func (d *Driver) Reset(ctx context.Context, ref string, mode ResetMode) (Result, error) {
	defer d.lockWrite()()
	if mode == "" {
		mode = ResetMixed
	}
	return d.run(ctx, "reset", "reset", string(mode), ref)
}

// Query runs a read-only SQL statement via `dolt sql -q ... -r csv`. The
// caller is responsible for escaping sql (§6).
func (d *Driver) Query(ctx context.Context, sql string) (Result, error) {
	return d.run(ctx, "query", "sql", "-q", sql, "-r", "csv")
}

// Execute runs a mutating SQL statement via `dolt sql -q`.
func (d *Driver) Execute(ctx context.Context, sql string) (Result, error) {
	defer d.lockWrite()()
	return d.run(ctx, "execute", "sql", "-q", sql)
}
