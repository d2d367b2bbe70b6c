package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockDLQPurger struct {
	calls     atomic.Int32
	purgeFunc func(ctx context.Context, retention time.Duration) (int, error)
}

var _ DLQPurger = (*mockDLQPurger)(nil)

func (m *mockDLQPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	m.calls.Add(1)
	if m.purgeFunc != nil {
		return m.purgeFunc(ctx, retention)
	}
	return 0, nil
}

func TestGarbageCollector_PurgeExpired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		purger    *mockDLQPurger
		wantCount int
		wantErr   bool
	}{
		{
			name: "passes retention through",
			purger: &mockDLQPurger{purgeFunc: func(_ context.Context, retention time.Duration) (int, error) {
				if retention != 24*time.Hour {
					return 0, errors.New("unexpected retention")
				}
				return 3, nil
			}},
			wantCount: 3,
		},
		{
			name: "partial purge keeps the count",
			purger: &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) {
				return 2, errors.New("channel closed")
			}},
			wantCount: 2,
			wantErr:   true,
		},
		{
			name:   "deadline is applied",
			purger: &mockDLQPurger{purgeFunc: deadlineChecked},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gc := NewGarbageCollector(tt.purger, time.Minute, 24*time.Hour, nil)
			n, err := gc.purgeExpired(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("purgeExpired() error = %v, wantErr %v", err, tt.wantErr)
			}
			if n != tt.wantCount {
				t.Errorf("purgeExpired() = %d, want %d", n, tt.wantCount)
			}
		})
	}
}

func deadlineChecked(ctx context.Context, _ time.Duration) (int, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("purge ran without a deadline")
	}
	return 0, nil
}

func TestGarbageCollector_NilPurger(t *testing.T) {
	t.Parallel()

	gc := NewGarbageCollector(nil, time.Minute, time.Hour, nil)
	if n, err := gc.purgeExpired(context.Background()); n != 0 || err != nil {
		t.Errorf("purgeExpired() = %d, %v", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gc.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}

func TestGarbageCollector_StartPurgesImmediately(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	purger := &mockDLQPurger{}
	purger.purgeFunc = func(context.Context, time.Duration) (int, error) {
		cancel()
		return 1, nil
	}

	gc := NewGarbageCollector(purger, 24*time.Hour, time.Hour, nil)
	if err := gc.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
	if got := purger.calls.Load(); got != 1 {
		t.Errorf("PurgeOlderThan called %d times before the first tick, want 1", got)
	}
}
