package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfit/liftsync/internal/outbox"
	"github.com/openfit/liftsync/internal/store"
)

// StatusResult summarizes the sync database.
type StatusResult struct {
	DBPath              string `json:"db_path"`
	Events              int    `json:"events"`
	PendingPublications int    `json:"pending_publications"`
	DeadLettered        int    `json:"dead_lettered"`
	LastKnownOnline     string `json:"last_known_online,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Summarize the local sync database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout())

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmd.Context()

	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	res := StatusResult{DBPath: cfg.DBPath}
	if res.Events, err = st.EventCount(ctx); err != nil {
		return f.Fail("count events", err)
	}
	if res.PendingPublications, err = st.PublicationCount(ctx, outbox.DefaultMaxAttempts); err != nil {
		return f.Fail("count pending publications", err)
	}
	dead, err := st.DeadLetteredPublications(ctx, 0, outbox.DefaultMaxAttempts)
	if err != nil {
		return f.Fail("count dead-lettered publications", err)
	}
	res.DeadLettered = len(dead)
	res.LastKnownOnline, err = st.GetStatus(ctx, store.StatusKeyOnline)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return f.Fail("read connectivity state", err)
	}

	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "database:        %s\n", res.DBPath)
		fmt.Fprintf(w, "events:          %d\n", res.Events)
		fmt.Fprintf(w, "pending queue:   %d\n", res.PendingPublications)
		fmt.Fprintf(w, "dead-lettered:   %d\n", res.DeadLettered)
		if res.LastKnownOnline != "" {
			fmt.Fprintf(w, "last online:     %s\n", res.LastKnownOnline)
		}
	})
}
