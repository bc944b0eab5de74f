package revalidate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	fail  string
}

func (r *recorder) Revalidate(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if path == r.fail {
		return errors.New("boom")
	}
	return nil
}

func TestFanoutReachesEveryTarget(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := NewFanout(a, nil, b)

	if err := f.Invalidate(context.Background(), "/", "/blog", "/blog/x"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	for _, r := range []*recorder{a, b} {
		sort.Strings(r.paths)
		if len(r.paths) != 3 || r.paths[0] != "/" || r.paths[1] != "/blog" || r.paths[2] != "/blog/x" {
			t.Fatalf("unexpected paths %v", r.paths)
		}
	}
}

func TestFanoutReportsFailure(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{fail: "/blog"}
	f := NewFanout(ok, bad)

	if err := f.Invalidate(context.Background(), "/", "/blog"); err == nil {
		t.Fatalf("expected error when one target fails")
	}
}

// orderedTarget records when its revalidation ran relative to others.
type orderedTarget struct {
	name string
	log  *[]string
	mu   *sync.Mutex
}

func (o orderedTarget) Revalidate(context.Context, string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.log = append(*o.log, o.name)
	return nil
}

func TestFanoutRunsTargetsInOrder(t *testing.T) {
	var mu sync.Mutex
	var log []string
	first := orderedTarget{name: "content", log: &log, mu: &mu}
	second := orderedTarget{name: "routes", log: &log, mu: &mu}

	if err := NewFanout(first, second).Invalidate(context.Background(), "/", "/blog", "/feed.xml"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	want := []string{"content", "content", "content", "routes", "routes", "routes"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestFanoutStopsAfterFailedTarget(t *testing.T) {
	bad := &recorder{fail: "/"}
	later := &recorder{}
	if err := NewFanout(bad, later).Invalidate(context.Background(), "/"); err == nil {
		t.Fatalf("expected error")
	}
	if len(later.paths) != 0 {
		t.Fatalf("expected later target to be skipped, got %v", later.paths)
	}
}

func TestFanoutWithNoTargets(t *testing.T) {
	if err := NewFanout().Invalidate(context.Background(), "/"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestKey(t *testing.T) {
	cases := map[string]string{
		"":               "/",
		"/":              "/",
		"/blog/":         "/blog",
		"/blog":          "/blog",
		"/docs/a/b/":     "/docs/a/b",
		"/blog/?page=2":  "/blog",
		"//":             "/",
	}
	for in, want := range cases {
		if got := Key(in); got != want {
			t.Fatalf("Key(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMemoryRouteCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRouteCache(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	gen, _ := c.Generation(ctx, "/blog/")
	if stored, err := c.Put(ctx, "/blog/", gen, Entry{ContentType: "text/html", Body: []byte("list")}); err != nil || !stored {
		t.Fatalf("Put: stored=%v err=%v", stored, err)
	}
	e, ok, err := c.Get(ctx, "/blog")
	if err != nil || !ok || string(e.Body) != "list" {
		t.Fatalf("expected hit, got %+v ok=%v err=%v", e, ok, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "/blog"); ok {
		t.Fatalf("expected expired entry to miss")
	}

	now = now.Add(-2 * time.Minute)
	if err := c.Revalidate(ctx, "/blog/"); err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "/blog"); ok {
		t.Fatalf("expected revalidated entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestMemoryRouteCacheDropsRenderStartedBeforeRevalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRouteCache(time.Minute)

	gen, _ := c.Generation(ctx, "/docs")
	if err := c.Revalidate(ctx, "/docs/"); err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	stored, err := c.Put(ctx, "/docs", gen, Entry{Body: []byte("stale")})
	if err != nil || stored {
		t.Fatalf("expected stale put to be dropped, stored=%v err=%v", stored, err)
	}
	if _, ok, _ := c.Get(ctx, "/docs"); ok {
		t.Fatalf("expected miss after dropped put")
	}

	fresh, _ := c.Generation(ctx, "/docs")
	if fresh == gen {
		t.Fatalf("expected generation to advance")
	}
	if stored, _ := c.Put(ctx, "/docs", fresh, Entry{Body: []byte("fresh")}); !stored {
		t.Fatalf("expected put at current generation to be stored")
	}
}

func TestRedisRouteCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisRouteCache(client, "", time.Minute)
	if _, ok, err := c.Get(ctx, "/"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}
	if stored, err := c.Put(ctx, "/", 0, Entry{ContentType: "text/html", Body: []byte("home")}); err != nil || !stored {
		t.Fatalf("Put: stored=%v err=%v", stored, err)
	}
	e, ok, err := c.Get(ctx, "/")
	if err != nil || !ok || string(e.Body) != "home" || e.ContentType != "text/html" {
		t.Fatalf("expected hit, got %+v ok=%v err=%v", e, ok, err)
	}
	if !mr.Exists("pubdocs:route:/") {
		t.Fatalf("expected entry under default prefix")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "/"); ok {
		t.Fatalf("expected entry to expire")
	}

	gen, err := c.Generation(ctx, "/blog/x/")
	if err != nil || gen != 0 {
		t.Fatalf("expected generation 0, got %d err=%v", gen, err)
	}
	_, _ = c.Put(ctx, "/blog/x/", gen, Entry{Body: []byte("post")})
	if err := NewFanout(c).Invalidate(ctx, "/blog/x"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "/blog/x"); ok {
		t.Fatalf("expected revalidated entry to miss")
	}

	stored, err := c.Put(ctx, "/blog/x", gen, Entry{Body: []byte("stale")})
	if err != nil || stored {
		t.Fatalf("expected stale put to be dropped, stored=%v err=%v", stored, err)
	}
	if _, ok, _ := c.Get(ctx, "/blog/x"); ok {
		t.Fatalf("expected miss after dropped put")
	}
	next, _ := c.Generation(ctx, "/blog/x")
	if next != 1 {
		t.Fatalf("expected generation 1, got %d", next)
	}
	if stored, err := c.Put(ctx, "/blog/x", next, Entry{Body: []byte("fresh")}); err != nil || !stored {
		t.Fatalf("expected current put to be stored, stored=%v err=%v", stored, err)
	}
	if ttl := mr.TTL("pubdocs:route:/blog/x"); ttl != time.Minute {
		t.Fatalf("expected entry ttl of a minute, got %v", ttl)
	}
}

func TestRouteCacheEpochAdvancesOnEveryRevalidate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	caches := map[string]RouteCache{
		"memory": NewMemoryRouteCache(time.Minute),
		"redis":  NewRedisRouteCache(client, "", time.Minute),
	}
	for name, c := range caches {
		t.Run(name, func(t *testing.T) {
			start, err := c.Epoch(ctx)
			if err != nil || start != 0 {
				t.Fatalf("expected epoch 0, got %d err=%v", start, err)
			}
			if err := NewFanout(c).Invalidate(ctx, "/", "/docs", "/docs/welcome/intro"); err != nil {
				t.Fatalf("Invalidate: %v", err)
			}
			epoch, err := c.Epoch(ctx)
			if err != nil || epoch != 3 {
				t.Fatalf("expected epoch 3, got %d err=%v", epoch, err)
			}
			if gen, _ := c.Generation(ctx, "/docs"); gen != 1 {
				t.Fatalf("expected route generation 1, got %d", gen)
			}
		})
	}
}

func TestRedisRouteCacheEpochIsShared(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	writer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reader := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = writer.Close()
		_ = reader.Close()
	})

	if err := NewRedisRouteCache(writer, "", time.Minute).Revalidate(ctx, "/blog"); err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	epoch, err := NewRedisRouteCache(reader, "", time.Minute).Epoch(ctx)
	if err != nil || epoch != 1 {
		t.Fatalf("expected epoch 1 on the other client, got %d err=%v", epoch, err)
	}
	if !mr.Exists("pubdocs:route:epoch") {
		t.Fatalf("expected epoch under default prefix")
	}
}
