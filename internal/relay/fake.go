package relay

import (
	"context"
	"sync"

	"github.com/openfit/liftsync/internal/event"
)

// Fake is an in-memory Client for tests and offline development. It serves
// fetches from a seeded event set, delivers seeded events to subscribers,
// and records publishes. Errors can be scripted per operation.
type Fake struct {
	mu        sync.Mutex
	events    map[string]*event.Event
	order     []string
	published []*event.Event

	FetchErr     error
	SubscribeErr error
	PublishErr   error
}

var _ Client = (*Fake)(nil)

// NewFake returns an empty fake relay.
func NewFake() *Fake {
	return &Fake{events: make(map[string]*event.Event)}
}

// Seed adds events the fake will serve. Later seeds with the same id
// replace earlier ones.
func (f *Fake) Seed(evs ...*event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range evs {
		if _, ok := f.events[ev.ID]; !ok {
			f.order = append(f.order, ev.ID)
		}
		f.events[ev.ID] = ev
	}
}

func (f *Fake) Fetch(ctx context.Context, flt event.Filter) ([]*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}

	var out []*event.Event
	for _, id := range f.order {
		ev := f.events[id]
		if flt.Matches(ev) {
			out = append(out, ev)
			if flt.Limit > 0 && len(out) >= flt.Limit {
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) Subscribe(ctx context.Context, flt event.Filter) (<-chan *event.Event, func(), error) {
	f.mu.Lock()
	if f.SubscribeErr != nil {
		err := f.SubscribeErr
		f.mu.Unlock()
		return nil, nil, err
	}
	var matched []*event.Event
	for _, id := range f.order {
		if ev := f.events[id]; flt.Matches(ev) {
			matched = append(matched, ev)
		}
	}
	f.mu.Unlock()

	ch := make(chan *event.Event, len(matched))
	for _, ev := range matched {
		ch <- ev
	}
	var once sync.Once
	cancel := func() { once.Do(func() { close(ch) }) }

	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

func (f *Fake) Publish(ctx context.Context, ev *event.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return "", f.PublishErr
	}
	f.published = append(f.published, ev)
	// Published events become fetchable, like a real relay round-trip.
	if _, ok := f.events[ev.ID]; !ok {
		f.order = append(f.order, ev.ID)
	}
	f.events[ev.ID] = ev
	return ev.ID, nil
}

// Published returns the events accepted by Publish, in order.
func (f *Fake) Published() []*event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*event.Event(nil), f.published...)
}
