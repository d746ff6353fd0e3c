package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-dubber/internal/languages"
)

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List target languages offered by the app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, opt := range languages.Catalog() {
				if opt.Native != "" && opt.Native != opt.Name {
					fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s (%s)\n", opt.Code, opt.Name, opt.Native)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", opt.Code, opt.Name)
			}
			return nil
		},
	}
}
