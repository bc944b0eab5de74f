package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps one hash per collection; each field is a document id holding
// the JSON-encoded document.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the server at redisURL and verifies it responds.
func OpenRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "pubdocs:"}
}

func (r *Redis) key(collection string) string {
	return r.prefix + collection
}

func (r *Redis) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := r.client.HGet(ctx, r.key(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	data, err := decode(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: data}, nil
}

func (r *Redis) List(ctx context.Context, collection string) ([]Document, error) {
	all, err := r.client.HGetAll(ctx, r.key(collection)).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(all))
	for id, raw := range all {
		data, err := decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	return sortByID(docs), nil
}

func (r *Redis) Set(ctx context.Context, collection, id string, data map[string]any, mergeFields bool) error {
	if !mergeFields {
		raw, err := encode(data)
		if err != nil {
			return err
		}
		return r.client.HSet(ctx, r.key(collection), id, raw).Err()
	}
	return r.patch(ctx, collection, id, data, false)
}

func (r *Redis) Update(ctx context.Context, collection, id string, data map[string]any) error {
	return r.patch(ctx, collection, id, data, true)
}

// patch merges data over the stored document under WATCH. A concurrent
// writer makes the transaction fail; the caller sees the error.
func (r *Redis) patch(ctx context.Context, collection, id string, data map[string]any, mustExist bool) error {
	key := r.key(collection)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if mustExist {
				return ErrNotFound
			}
		case err != nil:
			return err
		default:
			existing, err := decode(raw)
			if err != nil {
				return err
			}
			data = merge(existing, data)
		}
		encoded, err := encode(data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, encoded)
			return nil
		})
		return err
	}, key)
}

func (r *Redis) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := newID()
	raw, err := encode(data)
	if err != nil {
		return "", err
	}
	if err := r.client.HSet(ctx, r.key(collection), id, raw).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Redis) Delete(ctx context.Context, collection, id string) error {
	n, err := r.client.HDel(ctx, r.key(collection), id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Commit(ctx context.Context, writes ...Write) error {
	encoded := make([][]byte, len(writes))
	for i, w := range writes {
		raw, err := encode(w.Data)
		if err != nil {
			return err
		}
		encoded[i] = raw
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, w := range writes {
			pipe.HSet(ctx, r.key(w.Collection), w.ID, encoded[i])
		}
		return nil
	})
	return err
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
