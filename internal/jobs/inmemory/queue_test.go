package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ReconcileJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state %+v", jobID, want, job)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	var seen atomic.Value
	if err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		rj := job.(*jobs.ReconcileJob)
		seen.Store(rj.OwnerID)
		rj.Checked = 3
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ReconcileJob{OwnerID: "user-1"}
	if err := q.PublishReconcile(ctx, job); err != nil {
		t.Fatalf("PublishReconcile() error = %v", err)
	}
	if job.JobID == "" || job.MaxRetries != defaultMaxRetries {
		t.Errorf("defaults not applied: %+v", job)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.Checked != 3 {
		t.Errorf("Checked = %d, want 3", got.Checked)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("timestamps not set: %+v", got)
	}
	if seen.Load() != "user-1" {
		t.Errorf("handler saw owner %v, want user-1", seen.Load())
	}
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1), WithRetryBackoff(time.Millisecond))
	defer q.Close()

	var calls atomic.Int32
	_ = q.Start(ctx, func(context.Context, jobs.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("sink unavailable")
		}
		return nil
	})

	job := &jobs.ReconcileJob{OwnerID: "user-1"}
	if err := q.PublishReconcile(ctx, job); err != nil {
		t.Fatalf("PublishReconcile() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want cleared", got.Error)
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithRetryBackoff(time.Millisecond))
	defer q.Close()

	var calls atomic.Int32
	_ = q.Start(ctx, func(context.Context, jobs.Job) error {
		calls.Add(1)
		return errors.New("always fails")
	})

	job := &jobs.ReconcileJob{OwnerID: "user-1", MaxRetries: 2}
	_ = q.PublishReconcile(ctx, job)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got.Error != "always fails" {
		t.Errorf("Error = %q", got.Error)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("handler called %d times, want 3", n)
	}
}

func TestQueuePublishValidation(t *testing.T) {
	q := NewQueue(1, nil)

	if err := q.PublishReconcile(context.Background(), &jobs.ReconcileJob{}); err == nil {
		t.Error("expected error for missing owner")
	}

	_ = q.Close()
	if err := q.PublishReconcile(context.Background(), &jobs.ReconcileJob{OwnerID: "u"}); err == nil {
		t.Error("expected error after close")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("expected Start error after close")
	}
}

func TestQueuePublishRespectsContext(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := q.PublishReconcile(ctx, &jobs.ReconcileJob{OwnerID: "u"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PublishReconcile() error = %v, want deadline exceeded", err)
	}
}
