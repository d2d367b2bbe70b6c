package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockSweepEnqueuer struct {
	calls           int32
	enqueueSweepErr error
}

func (m *mockSweepEnqueuer) EnqueueSweep(context.Context) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.enqueueSweepErr != nil {
		return "", m.enqueueSweepErr
	}
	return "job-1", nil
}

var _ SweepEnqueuer = (*mockSweepEnqueuer)(nil)

func TestSweeper_ScheduleSweep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		enqueueErr  error
		expectError bool
	}{
		{name: "enqueued"},
		{name: "broker down", enqueueErr: errors.New("connection refused"), expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			jobs := &mockSweepEnqueuer{enqueueSweepErr: tt.enqueueErr}
			err := NewSweeper(jobs, nil).ScheduleSweep(context.Background())
			if (err != nil) != tt.expectError {
				t.Errorf("ScheduleSweep() error = %v, expectError %v", err, tt.expectError)
			}
			if jobs.calls != 1 {
				t.Errorf("EnqueueSweep called %d times, want 1", jobs.calls)
			}
		})
	}
}

func TestSweeper_Start(t *testing.T) {
	t.Parallel()

	t.Run("invalid schedule", func(t *testing.T) {
		t.Parallel()
		s := NewSweeper(&mockSweepEnqueuer{}, nil)
		if err := s.Start(context.Background(), "every now and then"); err == nil {
			t.Fatal("expected an error for an unparseable schedule")
		}
	})

	t.Run("ticks enqueue sweeps", func(t *testing.T) {
		t.Parallel()
		jobs := &mockSweepEnqueuer{}
		s := NewSweeper(jobs, nil)
		if err := s.Start(context.Background(), "@every 1s"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		deadline := time.Now().Add(3 * time.Second)
		for atomic.LoadInt32(&jobs.calls) == 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		s.Stop()
		if atomic.LoadInt32(&jobs.calls) == 0 {
			t.Error("no sweep enqueued within 3s")
		}
	})
}
