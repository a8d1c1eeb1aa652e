// Package relay defines the transport boundary to the relay network.
//
// The engine treats relays as a black box: events go out, events come in,
// and everything else (connection management, relay selection, signing) is
// behind this interface.
package relay

import (
	"context"

	"github.com/openfit/liftsync/internal/event"
)

// Client talks to the relay network.
type Client interface {
	// Fetch returns stored events matching the filter.
	Fetch(ctx context.Context, f event.Filter) ([]*event.Event, error)

	// Subscribe streams matching events until cancel is called or the
	// context ends. The channel is closed when the subscription ends.
	Subscribe(ctx context.Context, f event.Filter) (<-chan *event.Event, func(), error)

	// Publish sends a signed event and returns its accepted id.
	Publish(ctx context.Context, ev *event.Event) (string, error)
}
