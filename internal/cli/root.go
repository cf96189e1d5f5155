// Package cli implements storefrontctl, the operator tool for cache tags and regions.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format      string // "json" | "text"
	RegionsFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storefrontctl",
		Short: "Operate the storefront edge cache and region table",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.RegionsFile, "regions", "", "regions YAML file (default built-in table)")

	cmd.AddCommand(NewTagsCommand(opts))
	cmd.AddCommand(NewInvalidateCommand(opts))
	cmd.AddCommand(NewRegionsCommand(opts))

	return cmd
}

// writeOutput prints v as indented JSON, or calls text for the text format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
