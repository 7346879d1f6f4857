package service

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// maxInFlight bounds concurrent device requests during a settle-all fan-out.
const maxInFlight = 8

// mandatory runs every fn concurrently. The first failure cancels the siblings' context and is
// returned; the caller treats the batch as all-or-nothing.
func mandatory(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}

type task struct {
	name string
	run  func(context.Context) error
}

type outcome struct {
	name string
	err  error
}

// settle runs every task and waits until all of them finished. A failure never cancels the
// siblings; each task's error is reported in its own outcome, aligned to tasks.
func settle(ctx context.Context, tasks []task) []outcome {
	out := make([]outcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(maxInFlight)
	for i, t := range tasks {
		g.Go(func() error {
			out[i] = outcome{name: t.name, err: t.run(ctx)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// failed returns the outcomes that carry an error.
func failed(outs []outcome) []outcome {
	var bad []outcome
	for _, o := range outs {
		if o.err != nil {
			bad = append(bad, o)
		}
	}
	return bad
}
