package docstore

import (
	"context"
	"errors"
	"sync"
)

type fetchFunc func(ctx context.Context, collection, key string) (*Document, error)

// watchers fans change notifications out to subscriptions. Each subscription re-reads the document on a signal, so
// bursts of writes coalesce into one snapshot of the latest state while per-document order is preserved.
type watchers struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

func newWatchers() *watchers {
	return &watchers{subs: make(map[string]map[*subscription]struct{})}
}

type subscription struct {
	collection string
	key        string
	fetch      fetchFunc
	onChange   ChangeFunc
	onError    ErrorFunc
	signal     chan struct{}
	done       chan struct{}
	once       sync.Once
}

func watchKey(collection, key string) string {
	return collection + "/" + key
}

func (w *watchers) add(ctx context.Context, fetch fetchFunc, collection, key string, onChange ChangeFunc, onError ErrorFunc) (Unsubscribe, error) {
	if onChange == nil {
		return nil, errors.New("docstore: onChange is required")
	}
	s := &subscription{
		collection: collection,
		key:        key,
		fetch:      fetch,
		onChange:   onChange,
		onError:    onError,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	k := watchKey(collection, key)
	if w.subs[k] == nil {
		w.subs[k] = make(map[*subscription]struct{})
	}
	w.subs[k][s] = struct{}{}
	w.mu.Unlock()

	s.signal <- struct{}{}
	go s.run(ctx)

	unsubscribe := func() {
		w.remove(k, s)
		s.stop()
	}
	return unsubscribe, nil
}

func (w *watchers) remove(k string, s *subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if set, ok := w.subs[k]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(w.subs, k)
		}
	}
}

// notify signals every subscription of the document.
func (w *watchers) notify(collection, key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for s := range w.subs[watchKey(collection, key)] {
		s.poke()
	}
}

// notifyAll signals every subscription, used after a notification channel reconnects and changes may have been missed.
func (w *watchers) notifyAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, set := range w.subs {
		for s := range set {
			s.poke()
		}
	}
}

func (w *watchers) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for k, set := range w.subs {
		for s := range set {
			s.stop()
		}
		delete(w.subs, k)
	}
}

func (s *subscription) poke() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.stop()
			return
		case <-s.signal:
		}
		doc, err := s.fetch(ctx, s.collection, s.key)
		if ctx.Err() != nil {
			s.stop()
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
		switch {
		case errors.Is(err, ErrNotFound):
			s.onChange(Snapshot{Collection: s.collection, Key: s.key})
		case err != nil:
			if s.onError != nil {
				s.onError(err)
			}
		default:
			s.onChange(Snapshot{Collection: s.collection, Key: s.key, Exists: true, Data: doc.Data})
		}
	}
}
