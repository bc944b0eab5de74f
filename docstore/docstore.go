// Package docstore is a small document-database abstraction: named
// collections of JSON-like documents keyed by string ids. Backends exist for
// SQLite, Postgres, Redis and an in-process map.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// Document is a single stored record.
type Document struct {
	ID   string
	Data map[string]any
}

// Write is one entry of a batched Commit.
type Write struct {
	Collection string
	ID         string
	Data       map[string]any
}

// Store is implemented by every backend.
type Store interface {
	// Get returns a document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// List returns every document in a collection ordered by id.
	List(ctx context.Context, collection string) ([]Document, error)
	// Set creates or replaces a document. With merge, supplied fields are
	// applied over the existing document instead of replacing it.
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	// Update patches fields of an existing document; ErrNotFound if absent.
	Update(ctx context.Context, collection, id string, data map[string]any) error
	// Add stores a new document under a freshly assigned id.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// Delete removes a document; ErrNotFound if absent.
	Delete(ctx context.Context, collection, id string) error
	// Commit applies a batch of replacing writes together.
	Commit(ctx context.Context, writes ...Write) error
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend from the URL scheme: sqlite://, postgres://,
// postgresql://, redis://, rediss:// or memory://.
func Open(ctx context.Context, rawURL string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("docstore: empty store url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("docstore: parse url: %w", err)
	}
	switch u.Scheme {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, strings.TrimPrefix(rawURL, "sqlite://"))
	case "postgres", "postgresql":
		return OpenPostgres(ctx, rawURL)
	case "redis", "rediss":
		return OpenRedis(ctx, rawURL)
	default:
		return nil, fmt.Errorf("docstore: unsupported scheme %q", u.Scheme)
	}
}

func newID() string {
	return uuid.NewString()
}

// merge returns a copy of base with patch applied on top.
func merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func encode(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(data)
}

func decode(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func sortByID(docs []Document) []Document {
	slices.SortFunc(docs, func(a, b Document) int { return strings.Compare(a.ID, b.ID) })
	return docs
}
