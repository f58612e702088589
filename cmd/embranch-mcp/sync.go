package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect or drive the Dolt/Chroma sync state",
	}
	cmd.AddCommand(newSyncStatusCmd(), newSyncPushCmd(), newSyncPullCmd())
	return cmd
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether local state matches the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.chroma.Close()

			state, err := a.syncChk.Check(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, state)
		},
	}
}

func newSyncPushCmd() *cobra.Command {
	var remote, branch string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Flush local Chroma changes into Dolt and push to the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.chroma.Close()

			if remote == "" {
				remote = a.cfg.DoltRemoteName
			}
			if branch == "" {
				branch, err = a.driver.CurrentBranch(ctx)
				if err != nil {
					return err
				}
			}
			outcome, err := a.engine.ProcessPush(ctx, remote, branch)
			if err != nil {
				return err
			}
			return printJSON(cmd, outcome)
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "remote name (default: DOLT_REMOTE_NAME)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name (default: the checked-out branch)")
	return cmd
}

func newSyncPullCmd() *cobra.Command {
	var remote, branch string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch and merge the remote, replaying the resulting diff into Chroma",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.chroma.Close()

			if remote == "" {
				remote = a.cfg.DoltRemoteName
			}
			if branch == "" {
				branch, err = a.driver.CurrentBranch(ctx)
				if err != nil {
					return err
				}
			}
			if err := a.engine.ProcessPull(ctx, remote, branch); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pull complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "remote name (default: DOLT_REMOTE_NAME)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name (default: the checked-out branch)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
