package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfit/liftsync/internal/outbox"
	"github.com/openfit/liftsync/internal/store"
)

// QueueItem is one publication queue entry rendered for output.
type QueueItem struct {
	EventID     string `json:"event_id"`
	Attempts    int    `json:"attempts"`
	CreatedAt   string `json:"created_at"`
	LastAttempt string `json:"last_attempt,omitempty"`
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		deadLetter bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:           "queue",
		Short:         "Show the outbound publication queue",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(rootOpts, cmd, deadLetter, limit)
		},
	}
	cmd.Flags().BoolVar(&deadLetter, "dead-letter", false, "show items that exhausted their attempts")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum items")
	return cmd
}

func runQueue(opts *RootOptions, cmd *cobra.Command, deadLetter bool, limit int) error {
	f := newFormatter(opts, cmd.OutOrStdout())

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmd.Context()

	var raw []store.PublicationItem
	if deadLetter {
		raw, err = st.DeadLetteredPublications(ctx, limit, outbox.DefaultMaxAttempts)
	} else {
		raw, err = st.PendingPublications(ctx, limit, outbox.DefaultMaxAttempts)
	}
	if err != nil {
		return f.Fail("read publication queue", err)
	}

	items := make([]QueueItem, 0, len(raw))
	for _, it := range raw {
		qi := QueueItem{
			EventID:   it.EventID,
			Attempts:  it.Attempts,
			CreatedAt: time.Unix(it.CreatedAt, 0).UTC().Format(time.RFC3339),
		}
		if it.LastAttempt > 0 {
			qi.LastAttempt = time.Unix(it.LastAttempt, 0).UTC().Format(time.RFC3339)
		}
		items = append(items, qi)
	}

	return f.Success(items, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "queue empty")
			return
		}
		for _, it := range items {
			fmt.Fprintf(w, "%s  attempts=%d  queued=%s\n", it.EventID, it.Attempts, it.CreatedAt)
		}
	})
}
