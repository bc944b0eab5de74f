// Package revalidate drops cached renderings of reader routes after content
// changes.
package revalidate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Target is anything that holds state derived from a route.
type Target interface {
	Revalidate(ctx context.Context, path string) error
}

// Fanout revalidates targets in the order given, and every path on a
// target concurrently. A target that feeds another, such as a content cache
// read by a rendered-route cache, must come first so no render can pick up
// content the earlier target is about to drop.
type Fanout struct {
	targets []Target
}

// NewFanout returns a Fanout over targets. Nil targets are skipped.
func NewFanout(targets ...Target) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Invalidate revalidates every path on every target. It stops at the first
// target with a failed path and returns that error.
func (f *Fanout) Invalidate(ctx context.Context, paths ...string) error {
	for _, target := range f.targets {
		g, gctx := errgroup.WithContext(ctx)
		for _, path := range paths {
			g.Go(func() error {
				if err := target.Revalidate(gctx, path); err != nil {
					return fmt.Errorf("revalidate %s: %w", path, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Key normalizes a request path so "/blog/" and "/blog" share an entry.
func Key(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
