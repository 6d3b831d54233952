package app

import (
	"context"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Fabric fans store changes out to subscribers as full collection snapshots.
// Every subscriber gets the current snapshot on subscribe and then a snapshot
// after each commit touching the collection. Revisions delivered to one
// subscriber strictly increase; a slow subscriber only ever misses
// intermediate snapshots, never the latest one.
type Fabric struct {
	store Store
	sf    singleflight.Group

	mu    sync.Mutex
	feeds map[string]map[*subscriber]struct{}
	dirty map[string]struct{}
	gen   map[string]uint64
	wake  chan struct{}
}

type subscriber struct {
	ch        chan Snapshot
	delivered bool
	last      int64
	closed    bool
}

func NewFabric(store Store) *Fabric {
	return &Fabric{
		store: store,
		feeds: make(map[string]map[*subscriber]struct{}),
		dirty: make(map[string]struct{}),
		gen:   make(map[string]uint64),
		wake:  make(chan struct{}, 1),
	}
}

// Start registers for store notifications and dispatches them until ctx is done.
func (f *Fabric) Start(ctx context.Context) error {
	if err := f.store.Notify(ctx, f.markDirty); err != nil {
		return err
	}
	go f.run(ctx)
	return nil
}

// Subscribe streams snapshots of collection. The caller must invoke the
// returned cancel function (or cancel ctx) to release the subscription.
func (f *Fabric) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, func(), error) {
	sub := &subscriber{ch: make(chan Snapshot, 8)}

	// Register before the first read so no commit can fall between the two.
	f.mu.Lock()
	feed, ok := f.feeds[collection]
	if !ok {
		feed = make(map[*subscriber]struct{})
		f.feeds[collection] = feed
	}
	feed[sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if feed, ok := f.feeds[collection]; ok {
				delete(feed, sub)
				if len(feed) == 0 {
					delete(f.feeds, collection)
				}
			}
			sub.closed = true
			close(sub.ch)
		})
	}

	snap, err := f.load(ctx, collection)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	f.mu.Lock()
	f.offerLocked(sub, snap)
	f.mu.Unlock()

	stop := context.AfterFunc(ctx, cancel)
	return sub.ch, func() {
		stop()
		cancel()
	}, nil
}

// markDirty schedules a reload of collection. An empty name reloads every
// collection with subscribers.
func (f *Fabric) markDirty(collection string) {
	f.mu.Lock()
	if collection == "" {
		for c := range f.feeds {
			f.dirty[c] = struct{}{}
			f.gen[c]++
		}
	} else {
		f.dirty[collection] = struct{}{}
		f.gen[collection]++
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Fabric) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
			f.flush(ctx)
		}
	}
}

func (f *Fabric) flush(ctx context.Context) {
	f.mu.Lock()
	pending := make([]string, 0, len(f.dirty))
	for collection := range f.dirty {
		if len(f.feeds[collection]) > 0 {
			pending = append(pending, collection)
		}
	}
	f.dirty = make(map[string]struct{})
	f.mu.Unlock()

	for _, collection := range pending {
		snap, err := f.load(ctx, collection)
		if err != nil {
			log.WithError(err).WithField("collection", collection).Warn("fabric: snapshot load failed")
			continue
		}
		f.mu.Lock()
		for sub := range f.feeds[collection] {
			f.offerLocked(sub, snap)
		}
		f.mu.Unlock()
	}
}

// load coalesces concurrent reads of the same collection. Reads are only
// shared within one notification generation, so a caller never receives a
// read that started before a commit it was notified about.
func (f *Fabric) load(ctx context.Context, collection string) (Snapshot, error) {
	f.mu.Lock()
	key := collection + "#" + strconv.FormatUint(f.gen[collection], 10)
	f.mu.Unlock()

	v, err, _ := f.sf.Do(key, func() (interface{}, error) {
		return f.store.Snapshot(context.WithoutCancel(ctx), collection)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (f *Fabric) offerLocked(sub *subscriber, snap Snapshot) {
	if sub.closed || (sub.delivered && snap.Revision <= sub.last) {
		return
	}
	sub.delivered = true
	sub.last = snap.Revision
	offerLatest(sub.ch, snap)
}

// offerLatest sends v, discarding the oldest queued value when ch is full.
// ch must have a single sender.
func offerLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
