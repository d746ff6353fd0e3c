package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-dubber/internal/domain"
	"media-dubber/internal/engine"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Refresh the staged copy of the bundled engine (waits for a running job)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := ctx.ensureDeployment()
			if err != nil {
				return err
			}
			layout := dep.Layout()
			if layout.Mode != domain.DeploymentPackaged {
				return fmt.Errorf("staging only applies in packaged mode (current mode: %s)", layout.Mode)
			}

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			unlock, err := engine.LockStaging(cmd.Context(), layout, logger)
			if err != nil {
				return err
			}
			defer unlock()

			staged, err := engine.NewStager(logger).Stage(layout.Artifact, layout.StagedPath())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), staged)
			return nil
		},
	}
}
