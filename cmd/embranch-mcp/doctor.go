package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embranch/embranch/internal/manifest"
)

// doctorReport summarizes the health checks `doctor` runs, mirroring the
// teacher's DaemonStatus shape: a handful of named booleans/strings a
// human can scan at a glance, not a structured diagnostic protocol.
type doctorReport struct {
	Repo              string `json:"repo"`
	DoltExecutable    string `json:"dolt_executable"`
	DoltAvailable     bool   `json:"dolt_available"`
	RepoInitialized   bool   `json:"repo_initialized"`
	ManifestPresent   bool   `json:"manifest_present"`
	ManifestPath      string `json:"manifest_path"`
	SyncInSync        bool   `json:"sync_in_sync,omitempty"`
	SyncReason        string `json:"sync_reason,omitempty"`
	SyncCheckError    string `json:"sync_check_error,omitempty"`
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report the health of the Dolt executable, manifest, and sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.chroma.Close()

			report := doctorReport{
				Repo:            a.root,
				DoltExecutable:  a.cfg.DoltExecutablePath,
				DoltAvailable:   a.driver.Available(ctx),
				RepoInitialized: a.driver.IsInitialized(ctx),
				ManifestPath:    manifest.Path(a.root),
			}

			m, err := manifest.Read(a.root)
			if err != nil {
				return fmt.Errorf("reading manifest: %w", err)
			}
			report.ManifestPresent = m != nil

			if report.RepoInitialized && report.ManifestPresent {
				state, err := a.syncChk.Check(ctx)
				if err != nil {
					report.SyncCheckError = err.Error()
				} else {
					report.SyncInSync = state.InSync
					report.SyncReason = state.Reason
				}
			}

			return printJSON(cmd, report)
		},
	}
}
