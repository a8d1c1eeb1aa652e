package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfit/liftsync/internal/assetcache"
)

// CacheResult summarizes the asset cache after a command runs.
type CacheResult struct {
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"total_bytes"`
	Removed    int    `json:"removed,omitempty"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the asset cache",
	}
	cmd.AddCommand(newCacheStatusCommand(rootOpts))
	cmd.AddCommand(newCacheClearCommand(rootOpts))
	return cmd
}

func newCacheStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show asset cache usage",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStatus(rootOpts, cmd)
		},
	}
}

func runCacheStatus(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout())

	c, dir, err := openCache(opts)
	if err != nil {
		return err
	}

	res := CacheResult{Dir: dir, Entries: c.Len(), TotalBytes: c.TotalSize()}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "cache dir:   %s\n", res.Dir)
		fmt.Fprintf(w, "entries:     %d\n", res.Entries)
		fmt.Fprintf(w, "total bytes: %d\n", res.TotalBytes)
	})
}

func newCacheClearCommand(rootOpts *RootOptions) *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:           "clear",
		Short:         "Remove cached assets older than a cutoff",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(rootOpts, cmd, olderThanDays)
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", 30, "age cutoff in days")
	return cmd
}

func runCacheClear(opts *RootOptions, cmd *cobra.Command, olderThanDays int) error {
	f := newFormatter(opts, cmd.OutOrStdout())
	if olderThanDays <= 0 {
		return WrapExitError(ExitCommandError, "--older-than must be a positive number of days", nil)
	}

	c, dir, err := openCache(opts)
	if err != nil {
		return err
	}

	removed := c.ClearOld(time.Duration(olderThanDays) * 24 * time.Hour)
	res := CacheResult{Dir: dir, Entries: c.Len(), TotalBytes: c.TotalSize(), Removed: removed}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "removed %d asset(s); %d remaining (%d bytes)\n", res.Removed, res.Entries, res.TotalBytes)
	})
}

func openCache(opts *RootOptions) (*assetcache.Cache, string, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, "load config", err)
	}
	c, err := assetcache.Open(assetcache.Config{
		Dir:       cfg.Cache.Dir,
		Budget:    cfg.Cache.CacheBudgetBytes(),
		Freshness: cfg.Cache.Freshness(),
	})
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, "open asset cache", err)
	}
	return c, cfg.Cache.Dir, nil
}
