package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"wager-quiz-service/internal/app"
	"wager-quiz-service/internal/domain"
)

// Store implements app.Store on Redis.
// Layout:
//
//	HSET {ns}:col:{collection} {docID} {json}   one hash per collection
//	INCR {ns}:rev                               commit revision, bumped by every write tx
//	PUBLISH {ns}:changes {collection}           sent inside the same MULTI as the writes
//
// Transactions use WATCH/MULTI/EXEC: every hash a transaction reads is watched,
// so a concurrent commit to any of them aborts EXEC and the function is rerun.
type Store struct {
	client     *redis.Client
	namespace  string
	maxRetries int
}

func NewStore(client *redis.Client, namespace string, maxRetries int) *Store {
	if namespace == "" {
		namespace = "wager"
	}
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Store{client: client, namespace: namespace, maxRetries: maxRetries}
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := &txn{store: s, rtx: rtx, watched: make(map[string]struct{})}
			if err := fn(ctx, t); err != nil {
				return err
			}
			if len(t.writes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.queueWrites(ctx, pipe, t.writes)
				return nil
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			log.WithField("attempt", attempt).Debug("redis store: transaction conflict, retrying")
			continue
		}
		return err
	}
	return domain.ErrTransactionConflict
}

func (s *Store) queueWrites(ctx context.Context, pipe redis.Pipeliner, writes []write) {
	seen := make(map[string]struct{})
	var changed []string
	for _, w := range writes {
		key := s.collectionKey(w.collection)
		if w.delete {
			pipe.HDel(ctx, key, w.id)
		} else {
			pipe.HSet(ctx, key, w.id, w.data)
		}
		if _, ok := seen[w.collection]; !ok {
			seen[w.collection] = struct{}{}
			changed = append(changed, w.collection)
		}
	}
	pipe.Incr(ctx, s.revisionKey())
	for _, collection := range changed {
		pipe.Publish(ctx, s.changesChannel(), collection)
	}
}

func (s *Store) Snapshot(ctx context.Context, collection string) (app.Snapshot, error) {
	var (
		all *redis.MapStringStringCmd
		rev *redis.StringCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		all = pipe.HGetAll(ctx, s.collectionKey(collection))
		rev = pipe.Get(ctx, s.revisionKey())
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return app.Snapshot{}, fmt.Errorf("snapshot %s: %w", collection, err)
	}

	revision, err := rev.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return app.Snapshot{}, fmt.Errorf("snapshot %s revision: %w", collection, err)
	}
	fields, err := all.Result()
	if err != nil {
		return app.Snapshot{}, fmt.Errorf("snapshot %s: %w", collection, err)
	}
	return app.Snapshot{Collection: collection, Revision: revision, Docs: toDocuments(fields)}, nil
}

func (s *Store) Notify(ctx context.Context, fn func(collection string)) error {
	ps := s.client.Subscribe(ctx, s.changesChannel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", s.changesChannel(), err)
	}

	// Subscription messages arrive when go-redis resubscribes after a reconnect;
	// anything published in between is gone.
	messages := ps.ChannelWithSubscriptions()
	go func() {
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				switch m := msg.(type) {
				case *redis.Message:
					fn(m.Payload)
				case *redis.Subscription:
					if m.Kind == "subscribe" {
						fn("")
					}
				}
			}
		}
	}()
	return nil
}

func (s *Store) collectionKey(collection string) string {
	return s.namespace + ":col:" + collection
}

func (s *Store) revisionKey() string {
	return s.namespace + ":rev"
}

func (s *Store) changesChannel() string {
	return s.namespace + ":changes"
}

func toDocuments(fields map[string]string) []app.Document {
	docs := make([]app.Document, 0, len(fields))
	for id, data := range fields {
		docs = append(docs, app.Document{ID: id, Data: []byte(data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

type write struct {
	collection string
	id         string
	data       []byte
	delete     bool
}

type txn struct {
	store   *Store
	rtx     *redis.Tx
	watched map[string]struct{}
	writes  []write
}

// watch must precede the first read of a key so a later commit to it fails EXEC.
func (t *txn) watch(ctx context.Context, key string) error {
	if _, ok := t.watched[key]; ok {
		return nil
	}
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return err
	}
	t.watched[key] = struct{}{}
	return nil
}

func (t *txn) Get(ctx context.Context, collection, id string) ([]byte, bool, error) {
	key := t.store.collectionKey(collection)
	if err := t.watch(ctx, key); err != nil {
		return nil, false, err
	}
	data, err := t.rtx.HGet(ctx, key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (t *txn) List(ctx context.Context, collection string) ([]app.Document, error) {
	key := t.store.collectionKey(collection)
	if err := t.watch(ctx, key); err != nil {
		return nil, err
	}
	fields, err := t.rtx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return toDocuments(fields), nil
}

func (t *txn) Put(collection, id string, data []byte) {
	t.writes = append(t.writes, write{collection: collection, id: id, data: append([]byte(nil), data...)})
}

func (t *txn) Delete(collection, id string) {
	t.writes = append(t.writes, write{collection: collection, id: id, delete: true})
}
