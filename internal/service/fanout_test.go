package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
)

func TestMandatoryCancelsSiblings(t *testing.T) {
	boom := errors.New("boom")
	var cancelled atomic.Bool

	err := mandatory(context.Background(),
		func(context.Context) error { return boom },
		func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				cancelled.Store(true)
				return ctx.Err()
			case <-time.After(2 * time.Second):
				return nil
			}
		},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !cancelled.Load() {
		t.Errorf("sibling was not cancelled")
	}
}

func TestSettleWaitsForEveryTask(t *testing.T) {
	boom := errors.New("boom")
	var finished atomic.Int32

	outs := settle(context.Background(), []task{
		{"fails", func(context.Context) error { return boom }},
		{"slow", func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
				finished.Add(1)
				return nil
			}
		}},
		{"fast", func(context.Context) error { finished.Add(1); return nil }},
	})

	if finished.Load() != 2 {
		t.Errorf("finished = %d, want 2", finished.Load())
	}
	bad := failed(outs)
	if len(bad) != 1 || bad[0].name != "fails" || !errors.Is(bad[0].err, boom) {
		t.Errorf("failed = %+v", bad)
	}
	if outs[1].name != "slow" || outs[1].err != nil {
		t.Errorf("outcomes not aligned to tasks: %+v", outs)
	}
}

func TestStructuralChangeNilPrevious(t *testing.T) {
	if !structuralChange(nil, state.NewSnapshot(time.Now())) {
		t.Errorf("nil previous snapshot must count as structural")
	}
	a, b := state.NewSnapshot(time.Now()), state.NewSnapshot(time.Now())
	if structuralChange(a, b) {
		t.Errorf("two empty snapshots differ")
	}
	if got := dirtyFeedbacks(a, b); len(got) != 0 {
		t.Errorf("dirty = %v", got)
	}
}
