package cli

import (
	"fmt"
	"io"

	"github.com/Sternrassler/storefront-edge/pkg/region"
	"github.com/spf13/cobra"
)

// NewRegionsCommand creates the regions command.
func NewRegionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the configured regions and their channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegions(rootOpts.RegionsFile)
			if err != nil {
				return err
			}
			all := reg.All()
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, all, func(w io.Writer) {
				for _, r := range all {
					marker := ""
					if r.ID == reg.Default().ID {
						marker = " (default)"
					}
					fmt.Fprintf(w, "%-6s channel=%-10s %s%s\n", r.ID, r.ChannelID, r.Label, marker)
				}
			})
		},
	}
}

func loadRegions(path string) (*region.Registry, error) {
	if path == "" {
		return region.NewRegistry(region.Defaults())
	}
	return region.LoadFile(path)
}
