package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-dubber/internal/engine"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var file, lang, sourceLang string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the engine command a run would execute (stages the engine in packaged mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := buildRequest(file, lang, sourceLang)
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			resolver, err := ctx.resolver(logger)
			if err != nil {
				return err
			}
			unlock, err := engine.LockStaging(cmd.Context(), resolver.Layout(), logger)
			if err != nil {
				return err
			}
			defer unlock()

			command, err := resolver.Resolve(req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "mode: %s\n", resolver.Layout().Mode)
			fmt.Fprintf(cmd.OutOrStdout(), "command: %s\n", command.String())
			for _, env := range command.Env {
				fmt.Fprintf(cmd.OutOrStdout(), "env: %s\n", env)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "input.mp4", "Input video file")
	cmd.Flags().StringVarP(&lang, "lang", "l", "en", "Target language code")
	cmd.Flags().StringVar(&sourceLang, "source_lang", "", "Spoken language of the video")
	return cmd
}
