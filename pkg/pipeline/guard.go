package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type release struct {
	name string
	fn   func() error
}

// guard releases acquired resources in reverse order of acquisition.
type guard struct {
	stack []release
}

func (g *guard) push(name string, fn func() error) {
	g.stack = append(g.stack, release{name: name, fn: fn})
}

// unwind runs every release, newest first, even when earlier ones fail.
func (g *guard) unwind(ctx context.Context) error {
	var errs []error
	for i := len(g.stack) - 1; i >= 0; i-- {
		r := g.stack[i]
		if err := r.fn(); err != nil {
			slog.WarnContext(ctx, "release failed", slog.String("resource", r.name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("release %s: %w", r.name, err))
			continue
		}
		slog.DebugContext(ctx, "released", slog.String("resource", r.name))
	}
	g.stack = nil
	return errors.Join(errs...)
}
