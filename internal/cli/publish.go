package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfit/liftsync/internal/outbox"
	"github.com/openfit/liftsync/internal/store"
)

// PublishResult reports the queue state after enqueueing an event.
type PublishResult struct {
	EventID string `json:"event_id"`
	Pending int    `json:"pending"`
}

// NewPublishCommand creates the publish command. Publication is queue-based:
// the command records intent durably; delivery happens when a sync process
// with relay connectivity drains the queue.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "publish <event-id>",
		Short:         "Queue a stored event for relay publication",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(rootOpts, cmd, args[0])
		},
	}
}

func runPublish(opts *RootOptions, cmd *cobra.Command, eventID string) error {
	f := newFormatter(opts, cmd.OutOrStdout())

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmd.Context()

	ev, err := st.Get(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("event %s not found", eventID), err)
	}
	if err != nil {
		return f.Fail("load event", err)
	}

	payload, err := ev.Marshal()
	if err != nil {
		return f.Fail("encode event", err)
	}
	if err := st.EnqueuePublication(ctx, ev.ID, string(payload)); err != nil {
		return f.Fail("enqueue publication", err)
	}

	pending, err := st.PublicationCount(ctx, outbox.DefaultMaxAttempts)
	if err != nil {
		return f.Fail("count pending publications", err)
	}

	res := PublishResult{EventID: ev.ID, Pending: pending}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "queued %s for publication (%d pending)\n", res.EventID, res.Pending)
	})
}
