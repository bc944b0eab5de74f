package revalidate

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a cached response.
type Entry struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// RouteCache stores rendered responses by route. Lookups and writes use Key
// on the path.
//
// Every Revalidate advances the route's generation. A renderer reads the
// generation before it loads content and hands it back to Put, which drops
// the entry if the route was revalidated in between.
//
// Epoch advances on every Revalidate of any route, together with that
// route's generation. Process-local caches of content that feeds the routes
// compare it with the epoch they loaded under, so a revalidation on one
// replica reaches the others through a shared RouteCache.
type RouteCache interface {
	Target
	Epoch
	Get(ctx context.Context, path string) (Entry, bool, error)
	Generation(ctx context.Context, path string) (uint64, error)
	Put(ctx context.Context, path string, gen uint64, e Entry) (bool, error)
}

// Epoch reports a counter that moves whenever any route is revalidated.
type Epoch interface {
	Epoch(ctx context.Context) (uint64, error)
}

// MemoryRouteCache is a process-local RouteCache.
type MemoryRouteCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	gens    map[string]uint64
	epoch   uint64
}

type memoryEntry struct {
	Entry
	expires time.Time
}

// NewMemoryRouteCache returns a cache whose entries live for ttl.
func NewMemoryRouteCache(ttl time.Duration) *MemoryRouteCache {
	return &MemoryRouteCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		gens:    make(map[string]uint64),
	}
}

func (c *MemoryRouteCache) Get(_ context.Context, path string) (Entry, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[Key(path)]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return Entry{}, false, nil
	}
	return e.Entry, true, nil
}

func (c *MemoryRouteCache) Generation(_ context.Context, path string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[Key(path)], nil
}

func (c *MemoryRouteCache) Put(_ context.Context, path string, gen uint64, e Entry) (bool, error) {
	key := Key(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false, nil
	}
	c.entries[key] = memoryEntry{Entry: e, expires: c.now().Add(c.ttl)}
	return true, nil
}

func (c *MemoryRouteCache) Revalidate(_ context.Context, path string) error {
	key := Key(path)
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.epoch++
	c.mu.Unlock()
	return nil
}

func (c *MemoryRouteCache) Epoch(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch, nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryRouteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisRouteCache shares rendered routes between replicas so an invalidation
// on one instance is seen by all.
type RedisRouteCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRouteCache stores entries under prefix+Key(path) with ttl.
func NewRedisRouteCache(client *redis.Client, prefix string, ttl time.Duration) *RedisRouteCache {
	if prefix == "" {
		prefix = "pubdocs:route:"
	}
	return &RedisRouteCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisRouteCache) key(path string) string    { return c.prefix + Key(path) }
func (c *RedisRouteCache) genKey(path string) string { return c.prefix + "gen:" + Key(path) }
func (c *RedisRouteCache) epochKey() string          { return c.prefix + "epoch" }

// putIfCurrent stores ARGV[2] at KEYS[1] only while the generation at
// KEYS[2] still equals ARGV[1]. ARGV[3] is the TTL in milliseconds; 0 keeps
// the entry without expiry.
var putIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
if ARGV[3] == "0" then
	redis.call("SET", KEYS[1], ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 1
`)

func (c *RedisRouteCache) Get(ctx context.Context, path string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (c *RedisRouteCache) Generation(ctx context.Context, path string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey(path)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisRouteCache) Put(ctx context.Context, path string, gen uint64, e Entry) (bool, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	keys := []string{c.key(path), c.genKey(path)}
	stored, err := putIfCurrent.Run(ctx, c.client, keys,
		strconv.FormatUint(gen, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (c *RedisRouteCache) Epoch(ctx context.Context) (uint64, error) {
	epoch, err := c.client.Get(ctx, c.epochKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return epoch, err
}

// Revalidate drops the entry and advances the route generation and the
// epoch in one transaction.
func (c *RedisRouteCache) Revalidate(ctx context.Context, path string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(path))
		pipe.Incr(ctx, c.genKey(path))
		pipe.Incr(ctx, c.epochKey())
		return nil
	})
	return err
}
