package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
	"github.com/spf13/cobra"
)

type tagsOptions struct {
	store   string
	channel string
	region  string
	entity  string
	id      string
	path    string
}

// NewTagsCommand creates the tags command.
func NewTagsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tagsOptions{}

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Print the cache tags derived for an entity",
		Long: `Print the ordered cache tags a response for the given store, channel and entity
carries. --region resolves the channel from the region table. --path appends the path tags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := deriveTags(rootOpts, opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, tags, func(w io.Writer) {
				for _, t := range tags {
					fmt.Fprintln(w, t)
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.store, "store", "", "store hash (required)")
	cmd.Flags().StringVar(&opts.channel, "channel", "", "channel id (default: the default region's channel)")
	cmd.Flags().StringVar(&opts.region, "region", "", "region id, resolved to its channel")
	cmd.Flags().StringVar(&opts.entity, "type", "", "entity type")
	cmd.Flags().StringVar(&opts.id, "id", "", "entity id (requires --type)")
	cmd.Flags().StringVar(&opts.path, "path", "", "request path")
	_ = cmd.MarkFlagRequired("store")
	cmd.MarkFlagsMutuallyExclusive("channel", "region")

	return cmd
}

func deriveTags(rootOpts *RootOptions, opts *tagsOptions) ([]string, error) {
	reg, err := loadRegions(rootOpts.RegionsFile)
	if err != nil {
		return nil, err
	}

	channel := opts.channel
	if opts.region != "" {
		r, ok := reg.Strict(opts.region)
		if !ok {
			return nil, fmt.Errorf("unknown region %q", opts.region)
		}
		channel = r.ChannelID
	}

	entity, err := parseEntityType(opts.entity)
	if err != nil {
		return nil, err
	}
	if opts.id != "" && entity == "" {
		return nil, errors.New("--id requires --type")
	}

	d := cache.NewDeriver(opts.store, reg.Default().ChannelID)
	tags := d.Tags(cache.TagInput{ChannelID: channel, EntityType: entity, EntityID: opts.id})
	if opts.path != "" {
		tags = append(tags, cache.PathTags(opts.path)...)
	}
	return tags, nil
}

func parseEntityType(s string) (cache.EntityType, error) {
	if s == "" {
		return "", nil
	}
	t := cache.EntityType(s)
	if !slices.Contains(cache.EntityTypes(), t) {
		return "", fmt.Errorf("unknown entity type %q: must be one of %v", s, cache.EntityTypes())
	}
	return t, nil
}
