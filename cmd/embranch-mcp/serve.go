package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/embranch/embranch/internal/elog"
	"github.com/embranch/embranch/internal/toolsurface"
)

func newServeCmd() *cobra.Command {
	var remote, branch string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool-call loop over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.chroma.Close()

			status, err := a.init.Run(ctx)
			if err != nil {
				return fmt.Errorf("running startup initializer: %w", err)
			}
			elog.Infof("startup status: %s", status)

			if remote == "" {
				remote = a.cfg.DoltRemoteName
			}

			srv := &toolsurface.Server{
				Driver:  a.driver,
				Chroma:  a.chroma,
				Engine:  a.engine,
				SyncChk: a.syncChk,
				Root:    a.root,
				Remote:  remote,
				Branch:  branch,
			}

			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "default remote name for dolt_push/dolt_pull (default: DOLT_REMOTE_NAME)")
	cmd.Flags().StringVar(&branch, "branch", "", "default branch for dolt_push/dolt_pull (default: the checked-out branch)")
	return cmd
}
