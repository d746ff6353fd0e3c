package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"media-dubber/internal/domain"
	"media-dubber/internal/engine"
)

// errReported marks failures already printed by the renderer.
var errReported = errors.New("reported")

func newRunCommand(ctx *commandContext) *cobra.Command {
	var file, lang, sourceLang string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Translate one video and stream engine progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := buildRequest(file, lang, sourceLang)

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			bridge, err := ctx.bridge(logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderer := newRenderer(cmd.OutOrStdout())
			out, runErr := bridge.Run(runCtx, req, renderer)
			renderer.Close()

			switch out.Kind {
			case engine.OutcomeSuccess:
				return nil
			case engine.OutcomeCancelled:
				return context.Canceled
			}
			if runErr == nil {
				runErr = errReported
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", out.Message)
			if out.ExitCode > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "engine exit code: %d\n", out.ExitCode)
			}
			return fmt.Errorf("%w: %w", errReported, runErr)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Input video file")
	cmd.Flags().StringVarP(&lang, "lang", "l", "en", "Target language code")
	cmd.Flags().StringVar(&sourceLang, "source_lang", "", "Spoken language of the video (engine default when empty)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// buildRequest trims the flags; the resolver rejects empty values and the
// engine owns the meaning of language codes.
func buildRequest(file, lang, sourceLang string) domain.JobRequest {
	return domain.JobRequest{
		InputPath:      strings.TrimSpace(file),
		TargetLanguage: strings.TrimSpace(lang),
		SourceLanguage: strings.TrimSpace(sourceLang),
	}
}
