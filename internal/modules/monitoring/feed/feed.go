// Package feed fans out stored readings to in-process subscribers.
package feed

import (
	"sync"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

type Handler func(types.Reading)

// Subscription detaches a handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Subscriber is the insert-stream side of the data-access layer.
type Subscriber interface {
	Subscribe(Handler) Subscription
}

// Feed delivers each published reading to every subscriber, one event at a
// time: a Publish does not start until the previous one has returned from
// all handlers.
type Feed struct {
	mu       sync.Mutex
	deliver  sync.Mutex
	nextID   uint64
	handlers map[uint64]Handler
}

func New() *Feed {
	return &Feed{handlers: make(map[uint64]Handler)}
}

func (f *Feed) Subscribe(h Handler) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.handlers[id] = h
	return &subscription{feed: f, id: id}
}

func (f *Feed) Publish(r types.Reading) {
	f.deliver.Lock()
	defer f.deliver.Unlock()

	f.mu.Lock()
	hs := make([]Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(r)
	}
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type subscription struct {
	feed *Feed
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.handlers, s.id)
		s.feed.mu.Unlock()
	})
}

var _ Subscriber = (*Feed)(nil)
