package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bellvik/transport-planner/internal/app"
)

func newCacheCommand(e *env) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the route cache",
	}
	cacheCmd.AddCommand(newCachePurgeCommand(e), newCacheStatsCommand(e))
	return cacheCmd
}

func newCachePurgeCommand(e *env) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired cache entries, or every entry with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Status.PurgeCache(cmd.Context(), all)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every entry, not only expired ones")
	return cmd
}

func newCacheStatsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show active and expired entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				st, err := a.Status.CacheStats(cmd.Context())
				if err != nil {
					return err
				}
				return e.print(cmd.OutOrStdout(), st)
			})
		},
	}
}
