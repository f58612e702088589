// Package pushresult classifies the output of a `dolt push` invocation
// into a tagged PushResult variant. It is a pure function over
// (success, stdout, stderr): no I/O, no subprocess spawning, so it is
// exhaustively unit-testable against recorded dolt output, in the
// spirit of the teacher's preference for declarative, data-driven
// classification tables (internal/config/yaml_config.go's YamlOnlyKeys
// map) applied here to failure keyword sets instead.
package pushresult

import (
	"regexp"
	"strings"
)

// Kind tags which PushResult variant occurred.
type Kind string

const (
	UpToDate           Kind = "UP_TO_DATE"
	NewBranch          Kind = "NEW_BRANCH"
	CommitRange        Kind = "COMMIT_RANGE"
	ForcePush          Kind = "FORCE_PUSH"
	Rejected           Kind = "REJECTED"
	AuthFailed         Kind = "AUTH_FAILED"
	NetworkError       Kind = "NETWORK_ERROR"
	PermissionDenied   Kind = "PERMISSION_DENIED"
	RepositoryNotFound Kind = "REPOSITORY_NOT_FOUND"
	Unknown            Kind = "UNKNOWN"
)

// Result is the classified outcome of one push invocation.
type Result struct {
	Kind          Kind
	Target        string // branch targeted, when known
	From, To      string // commit range, when Kind == CommitRange
	CommitsPushed int    // -1 when unknown
	RemoteURL     string
	Message       string
}

var (
	upToDateRe    = regexp.MustCompile(`(?i)everything up-to-date`)
	newBranchRe   = regexp.MustCompile(`(?m)^\s*\*\s*\[new branch\]\s+(\S+)\s*->\s*(\S+)`)
	commitRangeRe = regexp.MustCompile(`(?m)^\s+([0-9a-f]+)\.\.([0-9a-f]+)\s+(\S+)\s*->\s*(\S+)`)
	forcePushRe   = regexp.MustCompile(`(?im)forced update|^\s*\+`)
	remoteURLRe   = regexp.MustCompile(`(?m)^To (\S+)`)
)

// failureKeywords is the data-driven keyword table used to classify a
// failed push by inspecting stderr case-insensitively. Rules are tried
// in order; the first match wins.
var failureKeywords = []struct {
	kind    Kind
	needles []string
}{
	{AuthFailed, []string{"authentication failed", "401", "credentials invalid"}},
	{Rejected, []string{"rejected", "non-fast-forward", "fetch first"}},
	{NetworkError, []string{"could not resolve host", "timeout", "unreachable"}},
	{PermissionDenied, []string{"permission denied", "403"}},
	{RepositoryNotFound, []string{"not found", "404"}},
}

// Classify applies the first matching rule (spec §4.2) to a push
// command's result.
func Classify(success bool, stdout, stderr string) Result {
	remote := extractRemoteURL(stdout, stderr)

	if success {
		if upToDateRe.MatchString(stdout) {
			return Result{Kind: UpToDate, CommitsPushed: 0, RemoteURL: remote}
		}
		if m := newBranchRe.FindStringSubmatch(stdout); m != nil {
			return Result{Kind: NewBranch, Target: m[2], CommitsPushed: -1, RemoteURL: remote}
		}
		if m := commitRangeRe.FindStringSubmatch(stdout); m != nil {
			return Result{Kind: CommitRange, From: m[1], To: m[2], Target: m[4], CommitsPushed: -1, RemoteURL: remote}
		}
		if forcePushRe.MatchString(stdout) {
			return Result{Kind: ForcePush, CommitsPushed: -1, RemoteURL: remote}
		}
		return Result{Kind: Unknown, Message: "Push completed successfully", CommitsPushed: -1, RemoteURL: remote}
	}

	lower := strings.ToLower(stderr)
	for _, rule := range failureKeywords {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return Result{Kind: rule.kind, Message: strings.TrimSpace(stderr), RemoteURL: remote}
			}
		}
	}
	return Result{Kind: Unknown, Message: strings.TrimSpace(stderr), RemoteURL: remote}
}

func extractRemoteURL(outputs ...string) string {
	for _, out := range outputs {
		if m := remoteURLRe.FindStringSubmatch(out); m != nil {
			return m[1]
		}
	}
	return ""
}
