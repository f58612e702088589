package pushresult

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyUpToDate(t *testing.T) {
	r := Classify(true, "Everything up-to-date\n", "")
	require.Equal(t, UpToDate, r.Kind)
	require.Equal(t, 0, r.CommitsPushed)
}

func TestClassifyNewBranch(t *testing.T) {
	out := "To https://dolthub.com/org/repo\n * [new branch]      feature -> feature\n"
	r := Classify(true, out, "")
	require.Equal(t, NewBranch, r.Kind)
	require.Equal(t, "feature", r.Target)
	require.Equal(t, "https://dolthub.com/org/repo", r.RemoteURL)
}

func TestClassifyCommitRange(t *testing.T) {
	out := "To https://dolthub.com/org/repo\n   abc1234..def5678  main -> main\n"
	r := Classify(true, out, "")
	require.Equal(t, CommitRange, r.Kind)
	require.Equal(t, "abc1234", r.From)
	require.Equal(t, "def5678", r.To)
	require.Equal(t, "main", r.Target)
}

func TestClassifyForcePush(t *testing.T) {
	out := "To https://dolthub.com/org/repo\n + abc1234...def5678 main -> main (forced update)\n"
	r := Classify(true, out, "")
	require.Equal(t, ForcePush, r.Kind)
}

func TestClassifyUnknownSuccess(t *testing.T) {
	r := Classify(true, "something unexpected\n", "")
	require.Equal(t, Unknown, r.Kind)
	require.Equal(t, "Push completed successfully", r.Message)
}

func TestClassifyRejected(t *testing.T) {
	r := Classify(false, "", "! [rejected] main -> main (non-fast-forward)\n")
	require.Equal(t, Rejected, r.Kind)
}

func TestClassifyAuthFailed(t *testing.T) {
	r := Classify(false, "", "remote: Authentication failed for repository\n")
	require.Equal(t, AuthFailed, r.Kind)
}

func TestClassifyNetworkError(t *testing.T) {
	r := Classify(false, "", "fatal: unable to access: Could not resolve host: dolthub.com\n")
	require.Equal(t, NetworkError, r.Kind)
}

func TestClassifyPermissionDenied(t *testing.T) {
	r := Classify(false, "", "fatal: Permission denied (publickey)\n")
	require.Equal(t, PermissionDenied, r.Kind)
}

func TestClassifyRepositoryNotFound(t *testing.T) {
	r := Classify(false, "", "remote: Repository not found\n")
	require.Equal(t, RepositoryNotFound, r.Kind)
}

func TestClassifyUnknownFailure(t *testing.T) {
	r := Classify(false, "", "some other fatal error\n")
	require.Equal(t, Unknown, r.Kind)
}

func TestFirstMatchingRuleWins(t *testing.T) {
	// Contains both "rejected" and "401" -- the AuthFailed keyword set is
	// checked first in failureKeywords, so it should win.
	r := Classify(false, "", "request failed: 401, ref was rejected\n")
	require.Equal(t, AuthFailed, r.Kind) // "401" belongs to AuthFailed, which is tried before Rejected
}
