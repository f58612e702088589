// Package manifest owns the project-local `.dmms/state.json` file: the
// single source of truth for which branch and commit a workstation
// should be tracking. Reads and writes are adapted from the teacher's
// internal/configfile metadata.json handling, hardened with atomic
// temp-file-plus-rename writes and an internal/flock exclusive lock
// since this file is written by concurrently running Embranch
// processes rather than a single long-lived daemon.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/embranch/embranch/internal/eerr"
	"github.com/embranch/embranch/internal/flock"
)

const (
	dirName  = ".dmms"
	fileName = "state.json"

	CurrentVersion = 1
)

// InitMode controls whether the initializer (C8) may act automatically.
type InitMode string

const (
	InitAuto     InitMode = "auto"
	InitManual   InitMode = "manual"
	InitDisabled InitMode = "disabled"
)

// DoltState is the "dolt" sub-object of the manifest.
type DoltState struct {
	RemoteURL      *string `json:"remote_url"`
	CurrentBranch  *string `json:"current_branch"`
	CurrentCommit  *string `json:"current_commit"`
	DefaultBranch  string  `json:"default_branch"`
}

// Manifest is the decoded form of `.dmms/state.json`. Unknown top-level
// fields are preserved in extra and remarshaled on Write, so a newer
// Embranch binary's additions survive being read and rewritten by an
// older one (or vice versa).
type Manifest struct {
	Version   int       `json:"version"`
	Dolt      DoltState `json:"dolt"`
	InitMode  InitMode  `json:"init_mode"`
	UpdatedAt time.Time `json:"updated_at"`

	extra map[string]json.RawMessage
}

// Path returns the manifest path under a project root.
func Path(root string) string {
	return filepath.Join(root, dirName, fileName)
}

func lockPath(root string) string {
	return filepath.Join(root, dirName, fileName+".lock")
}

// Read loads the manifest at root. It returns (nil, nil) if no manifest
// exists yet -- callers use CreateDefault to seed one.
func Read(root string) (*Manifest, error) {
	path := Path(root)
	data, err := os.ReadFile(path) // #nosec G304 -- project-local path under caller control
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eerr.Wrap(eerr.Internal, err, "reading manifest")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eerr.Wrap(eerr.Corrupt, err, "manifest is not valid JSON")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eerr.Wrap(eerr.Corrupt, err, "parsing manifest")
	}

	for _, known := range []string{"version", "dolt", "init_mode", "updated_at"} {
		delete(raw, known)
	}
	m.extra = raw

	return &m, nil
}

// Write persists m to root atomically: write to a sibling temp file,
// fsync, rename over the target, all while holding an exclusive
// internal/flock lock so two Embranch processes writing concurrently
// never interleave bytes (the single-writer invariant).
func Write(root string, m *Manifest) error {
	dir := filepath.Join(root, dirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return eerr.Wrap(eerr.Internal, err, "creating manifest directory")
	}

	lock, err := flock.Acquire(lockPath(root))
	if err != nil {
		return eerr.Wrap(eerr.Busy, err, "acquiring manifest lock")
	}
	defer lock.Release()

	merged, err := m.marshal()
	if err != nil {
		return eerr.Wrap(eerr.Internal, err, "marshaling manifest")
	}

	tmp, err := os.CreateTemp(dir, fileName+".tmp-*")
	if err != nil {
		return eerr.Wrap(eerr.Internal, err, "creating temp manifest file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(merged); err != nil {
		_ = tmp.Close()
		return eerr.Wrap(eerr.Internal, err, "writing temp manifest file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eerr.Wrap(eerr.Internal, err, "fsyncing temp manifest file")
	}
	if err := tmp.Close(); err != nil {
		return eerr.Wrap(eerr.Internal, err, "closing temp manifest file")
	}
	if err := os.Rename(tmpPath, Path(root)); err != nil {
		return eerr.Wrap(eerr.Internal, err, "renaming manifest into place")
	}
	return nil
}

func (m *Manifest) marshal() ([]byte, error) {
	known, err := json.Marshal(struct {
		Version   int       `json:"version"`
		Dolt      DoltState `json:"dolt"`
		InitMode  InitMode  `json:"init_mode"`
		UpdatedAt time.Time `json:"updated_at"`
	}{m.Version, m.Dolt, m.InitMode, m.UpdatedAt})
	if err != nil {
		return nil, err
	}

	merged := map[string]json.RawMessage{}
	for k, v := range m.extra {
		merged[k] = v
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}

	return json.MarshalIndent(merged, "", "  ")
}

// CreateDefault seeds a new manifest. It must only be called when Read
// has already confirmed no manifest exists; it never overwrites.
func CreateDefault(root string, remoteURL *string, defaultBranch string, mode InitMode) (*Manifest, error) {
	if _, err := os.Stat(Path(root)); err == nil {
		return nil, eerr.New(eerr.AlreadyInitialized, "manifest already exists")
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	m := &Manifest{
		Version: CurrentVersion,
		Dolt: DoltState{
			RemoteURL:     remoteURL,
			DefaultBranch: defaultBranch,
		},
		InitMode:  mode,
		UpdatedAt: time.Now().UTC(),
	}
	if err := Write(root, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateDoltState rewrites the branch/commit pointers and bumps
// UpdatedAt, persisting the result.
func UpdateDoltState(root string, m *Manifest, commit, branch *string) error {
	if commit != nil {
		m.Dolt.CurrentCommit = commit
	}
	if branch != nil {
		m.Dolt.CurrentBranch = branch
	}
	m.UpdatedAt = time.Now().UTC()
	return Write(root, m)
}

// SetRemote updates the remote URL in place and persists it.
func SetRemote(root string, m *Manifest, url string) error {
	m.Dolt.RemoteURL = &url
	m.UpdatedAt = time.Now().UTC()
	return Write(root, m)
}

func (m *Manifest) String() string {
	return fmt.Sprintf("manifest{branch=%v commit=%v mode=%s}", derefStr(m.Dolt.CurrentBranch), derefStr(m.Dolt.CurrentCommit), m.InitMode)
}

func derefStr(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
