package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Document is one stored record inside a collection.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Snapshot is the full content of a collection at a store revision.
type Snapshot struct {
	Collection string
	Revision   int64
	Docs       []Document
}

// Tx is the view a transaction function gets of the store.
// Reads observe committed state; writes are buffered and applied atomically on commit.
type Tx interface {
	Get(ctx context.Context, collection, id string) ([]byte, bool, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Put(collection, id string, data []byte)
	Delete(collection, id string)
}

// Store abstracts the backing document store (in-memory, Redis, etc).
type Store interface {
	// Update runs fn in an all-or-nothing transaction. fn may be invoked
	// more than once when the store detects a conflicting commit.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Snapshot reads a whole collection together with the revision it reflects.
	Snapshot(ctx context.Context, collection string) (Snapshot, error)
	// Notify calls fn with the collection name after each commit touching it,
	// until ctx is done. It returns once notifications are flowing. An empty
	// name means notifications may have been lost and any collection may have
	// changed.
	Notify(ctx context.Context, fn func(collection string)) error
}

const (
	gameCollection     = "game"
	gameDocID          = "state"
	playersCollection  = "players"
	categoryCollection = "categories"
	questionCollection = "questions"
)

// SubmissionsCollection names the ledger partition of one round of one game.
func SubmissionsCollection(gameID string, round int) string {
	return "submissions/" + gameID + "/" + strconv.Itoa(round)
}

func getDoc[T any](ctx context.Context, tx Tx, collection, id string) (T, bool, error) {
	var v T
	raw, ok, err := tx.Get(ctx, collection, id)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return v, true, nil
}

func listDocs[T any](ctx context.Context, tx Tx, collection string) ([]T, error) {
	docs, err := tx.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeDocs[T](collection, docs)
}

func decodeDocs[T any](collection string, docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func putDoc(tx Tx, collection, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	tx.Put(collection, id, raw)
	return nil
}
