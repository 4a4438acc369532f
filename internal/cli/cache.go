package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aristath/agrimarket/internal/localcache"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local cache",
	}
	cmd.AddCommand(newCacheShowCommand(rootOpts))
	return cmd
}

func newCacheShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the signed-in user's cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheShow(rootOpts, cmd)
		},
	}
}

func runCacheShow(rootOpts *RootOptions, cmd *cobra.Command) error {
	f := rootOpts.formatter(cmd)

	c, err := rootOpts.client(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.CacheStore.List(cmd.Context(), localcache.UserPrefix(c.Session.UserID))
	if err != nil {
		return f.Fail("failed to read cache", err)
	}

	return f.Success(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "Cache is empty")
			return
		}
		for _, e := range entries {
			_, kind, _ := localcache.SplitKey(e.Key)
			expiry := "never"
			if e.ExpiresAt != nil {
				expiry = e.ExpiresAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%-24s %7d bytes  updated %s  expires %s\n",
				kind, len(e.Value), e.UpdatedAt.Format("2006-01-02 15:04"), expiry)
		}
	})
}
