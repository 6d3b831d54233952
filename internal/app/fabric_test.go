package app_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"wager-quiz-service/internal/app"
	"wager-quiz-service/internal/infra/memory"
)

func TestFabricDeliversInitialSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	put(t, store, "players", "u1")

	f := app.NewFabric(store)
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snaps, stop, err := f.Subscribe(ctx, "players")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	select {
	case snap := <-snaps:
		if len(snap.Docs) != 1 || snap.Revision != 1 {
			t.Fatalf("unexpected initial snapshot %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected initial snapshot")
	}
}

func TestFabricRevisionsIncreaseAndLatestArrives(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	f := app.NewFabric(store)
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snaps, stop, err := f.Subscribe(ctx, "players")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	// Nobody reads while 50 commits land; the subscriber may miss some but not the last.
	for i := 0; i < 50; i++ {
		put(t, store, "players", "u"+strconv.Itoa(i))
	}

	last := int64(-1)
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if snap.Revision <= last {
				t.Fatalf("revision went from %d to %d", last, snap.Revision)
			}
			last = snap.Revision
			if len(snap.Docs) == 50 {
				return
			}
		case <-timeout:
			t.Fatalf("latest snapshot never arrived, last revision %d", last)
		}
	}
}

func TestFabricIgnoresOtherCollections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	f := app.NewFabric(store)
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snaps, stop, err := f.Subscribe(ctx, "game")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()
	<-snaps

	put(t, store, "players", "u1")
	select {
	case snap := <-snaps:
		t.Fatalf("unexpected snapshot for untouched collection %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFabricCancelClosesChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.NewStore()
	f := app.NewFabric(store)

	snaps, _, err := f.Subscribe(ctx, "game")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-snaps
	cancel()

	select {
	case _, ok := <-snaps:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after context cancel")
	}
}

// quietStore drops commit notifications until resync is called.
type quietStore struct {
	app.Store
	mu sync.Mutex
	fn func(string)
}

func (s *quietStore) Notify(ctx context.Context, fn func(string)) error {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return nil
}

func (s *quietStore) resync() {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	fn("")
}

func TestFabricReloadsEveryFeedOnResync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &quietStore{Store: memory.NewStore()}

	f := app.NewFabric(store)
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	players, stopPlayers, err := f.Subscribe(ctx, "players")
	if err != nil {
		t.Fatalf("subscribe players: %v", err)
	}
	defer stopPlayers()
	categories, stopCategories, err := f.Subscribe(ctx, "categories")
	if err != nil {
		t.Fatalf("subscribe categories: %v", err)
	}
	defer stopCategories()
	<-players
	<-categories

	put(t, store, "players", "u1")
	put(t, store, "categories", "c1")
	select {
	case snap := <-players:
		t.Fatalf("unexpected snapshot before resync: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}

	store.resync()
	for name, ch := range map[string]<-chan app.Snapshot{"players": players, "categories": categories} {
		select {
		case snap := <-ch:
			if len(snap.Docs) != 1 {
				t.Fatalf("%s: expected the missed write after resync, got %+v", name, snap)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: expected a snapshot after resync", name)
		}
	}
}

func put(t *testing.T, store app.Store, collection, id string) {
	t.Helper()
	err := store.Update(context.Background(), func(_ context.Context, tx app.Tx) error {
		tx.Put(collection, id, []byte(`{"id":"`+id+`"}`))
		return nil
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
}
