package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embranch/embranch/internal/initializer"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a fresh local repository (schema bootstrap) or clone the configured remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.chroma.Close()

			if a.driver.IsInitialized(ctx) {
				fmt.Fprintf(cmd.OutOrStdout(), "repository at %s is already initialized\n", a.root)
				return nil
			}

			status, err := a.init.Run(ctx)
			if err != nil {
				return fmt.Errorf("running initializer: %w", err)
			}

			if status == initializer.StatusPendingConfig {
				if err := a.init.Init(ctx); err != nil {
					return fmt.Errorf("bootstrapping new repository: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "initialized new repository with schema at %s\n", a.root)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "startup status: %s\n", status)
			return nil
		},
	}
	return cmd
}
