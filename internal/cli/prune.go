package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// PruneResult reports what an age-based prune removed.
type PruneResult struct {
	Removed int64  `json:"removed"`
	Cutoff  string `json:"cutoff"`
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:           "prune",
		Short:         "Delete events older than a cutoff",
		Long:          "Delete stored events, their tags, and their feed rows when created before the cutoff. This is the only deletion path for events.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(rootOpts, cmd, olderThanDays)
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "age cutoff in days (required)")
	cmd.MarkFlagRequired("older-than")
	return cmd
}

func runPrune(opts *RootOptions, cmd *cobra.Command, olderThanDays int) error {
	f := newFormatter(opts, cmd.OutOrStdout())
	if olderThanDays <= 0 {
		return WrapExitError(ExitCommandError, "--older-than must be a positive number of days", nil)
	}

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	removed, err := st.DeleteEventsBefore(cmd.Context(), cutoff)
	if err != nil {
		return f.Fail("prune events", err)
	}

	res := PruneResult{Removed: removed, Cutoff: cutoff.UTC().Format(time.RFC3339)}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "removed %d event(s) older than %s\n", res.Removed, res.Cutoff)
	})
}
