package memory

import (
	"context"
	"sort"
	"sync"

	"wager-quiz-service/internal/app"
)

// Store is an in-memory implementation of app.Store. Transactions are
// serialized by a single lock, so they never conflict.
type Store struct {
	mu          sync.RWMutex
	revision    int64
	collections map[string]map[string][]byte

	watchMu  sync.RWMutex
	nextID   int
	watchers map[int]func(string)
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
		watchers:    make(map[int]func(string)),
	}
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	changed, err := func() ([]string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		tx := &txn{store: s}
		if err := fn(ctx, tx); err != nil {
			return nil, err
		}
		return s.applyLocked(tx.writes), nil
	}()
	if err != nil {
		return err
	}

	s.notify(changed)
	return nil
}

func (s *Store) Snapshot(ctx context.Context, collection string) (app.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return app.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return app.Snapshot{
		Collection: collection,
		Revision:   s.revision,
		Docs:       s.listLocked(collection),
	}, nil
}

func (s *Store) Notify(ctx context.Context, fn func(collection string)) error {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	context.AfterFunc(ctx, func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	})
	return nil
}

func (s *Store) applyLocked(writes []write) []string {
	if len(writes) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var changed []string
	for _, w := range writes {
		docs, ok := s.collections[w.collection]
		if w.delete {
			if ok {
				delete(docs, w.id)
				if len(docs) == 0 {
					delete(s.collections, w.collection)
				}
			}
		} else {
			if !ok {
				docs = make(map[string][]byte)
				s.collections[w.collection] = docs
			}
			docs[w.id] = w.data
		}
		if _, ok := seen[w.collection]; !ok {
			seen[w.collection] = struct{}{}
			changed = append(changed, w.collection)
		}
	}
	s.revision++
	return changed
}

func (s *Store) listLocked(collection string) []app.Document {
	docs := s.collections[collection]
	out := make([]app.Document, 0, len(docs))
	for id, data := range docs {
		out = append(out, app.Document{ID: id, Data: clone(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) notify(changed []string) {
	if len(changed) == 0 {
		return
	}
	s.watchMu.RLock()
	defer s.watchMu.RUnlock()
	for _, fn := range s.watchers {
		for _, collection := range changed {
			fn(collection)
		}
	}
}

type write struct {
	collection string
	id         string
	data       []byte
	delete     bool
}

// txn reads committed state directly; the store lock is held by Update.
type txn struct {
	store  *Store
	writes []write
}

func (t *txn) Get(_ context.Context, collection, id string) ([]byte, bool, error) {
	data, ok := t.store.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return clone(data), true, nil
}

func (t *txn) List(_ context.Context, collection string) ([]app.Document, error) {
	return t.store.listLocked(collection), nil
}

func (t *txn) Put(collection, id string, data []byte) {
	t.writes = append(t.writes, write{collection: collection, id: id, data: clone(data)})
}

func (t *txn) Delete(collection, id string) {
	t.writes = append(t.writes, write{collection: collection, id: id, delete: true})
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
