package tiledbcore_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	tiledbcore "github.com/dstorehq/tiledbcore"
)

func TestPoolRunExecutesAllTasks(t *testing.T) {
	p := tiledbcore.NewPool(4)
	var n int64
	tasks := make([]func(context.Context) error, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt64(&n, 1)
			return nil
		}
	}
	if err := p.Run(context.Background(), tasks...); err != nil {
		t.Fatalf("Run: %s", err)
	}
	if n != 20 {
		t.Errorf("n = %d, want 20", n)
	}
}

func TestPoolRunPropagatesFirstError(t *testing.T) {
	p := tiledbcore.NewPool(2)
	want := errors.New("boom")
	err := p.Run(context.Background(),
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return want },
	)
	if err != want {
		t.Errorf("Run error = %v, want %v", err, want)
	}
}

func TestPoolDefaultsConcurrencyWhenNonPositive(t *testing.T) {
	p := tiledbcore.NewPool(0)
	if err := p.Run(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Run: %s", err)
	}
}
