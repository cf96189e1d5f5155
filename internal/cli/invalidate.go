package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type invalidateOptions struct {
	redisURL string
	store    string
	entity   string
	id       string
	path     string
	timeout  time.Duration
}

type invalidateResult struct {
	Tags        []string `json:"tags"`
	Invalidated int      `json:"invalidated"`
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &invalidateOptions{}

	cmd := &cobra.Command{
		Use:   "invalidate [tag...]",
		Short: "Remove cached responses by tag",
		Long: `Remove every shared cache entry indexed under the given tags.

Tags can be given literally, or built from --type/--id (store-scoped, every channel)
and --path (the path and everything below it).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := invalidationTags(opts, args)
			if err != nil {
				return err
			}

			rdbOpts, err := redis.ParseURL(opts.redisURL)
			if err != nil {
				return fmt.Errorf("parse redis URL: %w", err)
			}
			rdb := redis.NewClient(rdbOpts)
			defer rdb.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			n, err := cache.NewManager(rdb).InvalidateTags(ctx, tags...)
			if err != nil {
				return fmt.Errorf("invalidate: %w", err)
			}

			res := invalidateResult{Tags: tags, Invalidated: n}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, res, func(w io.Writer) {
				fmt.Fprintf(w, "invalidated %d entries for %d tags\n", n, len(tags))
			})
		},
	}

	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "redis://localhost:6379/0", "redis URL of the shared cache")
	cmd.Flags().StringVar(&opts.store, "store", "", "store hash (required with --type)")
	cmd.Flags().StringVar(&opts.entity, "type", "", "entity type")
	cmd.Flags().StringVar(&opts.id, "id", "", "entity id")
	cmd.Flags().StringVar(&opts.path, "path", "", "request path")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "operation timeout")

	return cmd
}

func invalidationTags(opts *invalidateOptions, args []string) ([]string, error) {
	tags := append([]string(nil), args...)

	entity, err := parseEntityType(opts.entity)
	if err != nil {
		return nil, err
	}
	if entity != "" {
		if opts.store == "" {
			return nil, errors.New("--type requires --store")
		}
		// The default channel does not matter for store-scoped tags
		tags = append(tags, cache.NewDeriver(opts.store, "").StoreScopedTag(entity, opts.id))
	} else if opts.id != "" {
		return nil, errors.New("--id requires --type")
	}

	if opts.path != "" {
		tags = append(tags, cache.PathTag(opts.path))
	}

	if len(tags) == 0 {
		return nil, errors.New("no tags given: pass tags, --type or --path")
	}
	return tags, nil
}
