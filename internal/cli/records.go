package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfit/liftsync/internal/event"
	"github.com/openfit/liftsync/internal/reconcile"
	"github.com/openfit/liftsync/internal/store"
)

// NewRecordsCommand creates the records command group.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect stored workout records",
	}
	cmd.AddCommand(newRecordsListCommand(rootOpts))
	cmd.AddCommand(newRecordsSearchCommand(rootOpts))
	return cmd
}

func newRecordsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind  int
		limit int
	)
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored records, most recent first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsList(rootOpts, cmd, kind, limit)
		},
	}
	cmd.Flags().IntVar(&kind, "kind", event.KindWorkoutRecord, "event kind to list")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records")
	return cmd
}

func runRecordsList(opts *RootOptions, cmd *cobra.Command, kind, limit int) error {
	f := newFormatter(opts, cmd.OutOrStdout())

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := localRecords(cmd, st, kind, limit)
	if err != nil {
		return f.Fail("list records", err)
	}
	return f.Success(records, func(w io.Writer) { printRecords(w, records) })
}

func newRecordsSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:           "search <query>",
		Short:         "Search stored records by title or content",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsSearch(rootOpts, cmd, args[0], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum records to scan")
	return cmd
}

func runRecordsSearch(opts *RootOptions, cmd *cobra.Command, query string, limit int) error {
	f := newFormatter(opts, cmd.OutOrStdout())

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := localRecords(cmd, st, event.KindWorkoutRecord, limit)
	if err != nil {
		return f.Fail("search records", err)
	}
	matched := reconcile.Search(records, query)
	return f.Success(matched, func(w io.Writer) { printRecords(w, matched) })
}

// localRecords builds the record view of stored events of one kind.
func localRecords(cmd *cobra.Command, st *store.Store, kind, limit int) ([]reconcile.Record, error) {
	evs, err := st.ListByKind(cmd.Context(), kind, 0, 0, limit)
	if err != nil {
		return nil, err
	}
	records := make([]reconcile.Record, 0, len(evs))
	for i := range evs {
		records = append(records, reconcile.FromEvent(&evs[i], reconcile.SourceLocal))
	}
	return records, nil
}

func printRecords(w io.Writer, records []reconcile.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no records")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %s  %s\n", r.Timestamp.Format(time.RFC3339), r.EventID, r.Title)
	}
}
