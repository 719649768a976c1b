package adapter

import (
	"context"
	"sync"

	"chatsync/internal/infrastructure/changefeed/port"
	chat "chatsync/internal/pkg/chat/application/domain"
)

// MemoryFeed is an in-process broker. Publish delivers synchronously, in
// order, to every matching subscriber of the topic.
type MemoryFeed struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{} // topic -> subscriptions
	closed bool
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[*memorySub]struct{})}
}

var (
	_ port.Feed      = (*MemoryFeed)(nil)
	_ port.Publisher = (*MemoryFeed)(nil)
)

type memorySub struct {
	feed   *MemoryFeed
	topic  string
	filter port.Filter
	h      port.Handler

	deliver sync.Mutex
	once    sync.Once
	stop    context.CancelFunc
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		s.stop()
		s.feed.remove(s)
		// wait out a delivery already in progress
		s.deliver.Lock()
		s.deliver.Unlock()
	})
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, topic string, filter port.Filter, h port.Handler) (port.Subscription, error) {
	if h == nil {
		return nil, errNilHandler
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, port.ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &memorySub{feed: f, topic: topic, filter: filter, h: h, stop: cancel}
	set := f.subs[topic]
	if set == nil {
		set = make(map[*memorySub]struct{})
		f.subs[topic] = set
	}
	set[s] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-subCtx.Done()
		_ = s.Unsubscribe()
	}()
	return s, nil
}

func (f *MemoryFeed) Publish(ctx context.Context, topic string, event chat.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return port.ErrClosed
	}
	targets := make([]*memorySub, 0, len(f.subs[topic]))
	for s := range f.subs[topic] {
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	for _, s := range targets {
		if !s.filter.Match(event) {
			continue
		}
		s.deliver.Lock()
		if f.active(s) {
			s.h(event)
		}
		s.deliver.Unlock()
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (f *MemoryFeed) Subscribers(topic string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[topic])
}

// Close drops every subscription.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	var all []*memorySub
	for _, set := range f.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	f.subs = make(map[string]map[*memorySub]struct{})
	f.closed = true
	f.mu.Unlock()

	for _, s := range all {
		_ = s.Unsubscribe()
	}
	return nil
}

func (f *MemoryFeed) active(s *memorySub) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.subs[s.topic][s]
	return ok
}

func (f *MemoryFeed) remove(s *memorySub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.subs[s.topic]
	if set == nil {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(f.subs, s.topic)
	}
}
