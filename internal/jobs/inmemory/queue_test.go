package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/jobs"
	"github.com/rs/zerolog"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.MirrorJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), id)
	t.Fatalf("job %s never reached %s, last state %+v", id, want, job)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(Options{BufferSize: 4, Workers: 1}, store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := q.Start(ctx, func(_ context.Context, job *jobs.MirrorJob) error {
		job.Result = "gs://bucket/ledger.csv"
		job.Rows = 3
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	job := &jobs.MirrorJob{Target: jobs.TargetGCS}
	if err := q.PublishMirror(ctx, job); err != nil {
		t.Fatalf("PublishMirror failed: %v", err)
	}
	if job.JobID == "" || job.MaxRetries != 3 {
		t.Errorf("defaults not applied: %+v", job)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Result != "gs://bucket/ledger.csv" || done.Rows != 3 || done.CompletedAt == nil {
		t.Errorf("unexpected completed job: %+v", done)
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishMirror(ctx, &jobs.MirrorJob{Target: jobs.TargetGCS}); err == nil {
		t.Error("expected publish on a stopped queue to fail")
	}
}

func TestQueueRetriesThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(Options{Workers: 1, MaxRetries: 2, Backoff: time.Millisecond}, store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer q.Close()

	var attempts atomic.Int32
	if err := q.Start(ctx, func(context.Context, *jobs.MirrorJob) error {
		attempts.Add(1)
		return errors.New("upstream unavailable")
	}); err != nil {
		t.Fatal(err)
	}

	job := &jobs.MirrorJob{Target: jobs.TargetBigQuery}
	if err := q.PublishMirror(ctx, job); err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 2 || failed.Error != "upstream unavailable" {
		t.Errorf("unexpected failed job: %+v", failed)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestStoreListJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, target := range []jobs.Target{jobs.TargetGCS, jobs.TargetNotion, jobs.TargetGCS} {
		_ = store.SaveJob(ctx, &jobs.MirrorJob{
			JobID:     string(rune('a' + i)),
			Target:    target,
			Status:    jobs.JobStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].JobID != "c" || all[2].JobID != "a" {
		t.Errorf("expected newest first, got %v", ids(all))
	}

	gcs, _ := store.ListJobs(ctx, jobs.JobFilter{Target: jobs.TargetGCS, Limit: 1})
	if len(gcs) != 1 || gcs[0].JobID != "c" {
		t.Errorf("filtered list = %v", ids(gcs))
	}

	empty, _ := store.ListJobs(ctx, jobs.JobFilter{Offset: 10})
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v", empty)
	}
}

func TestStoreErrors(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.SaveJob(ctx, &jobs.MirrorJob{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	job := &jobs.MirrorJob{JobID: "j", Status: jobs.JobStatusPending}
	_ = store.SaveJob(ctx, job)

	job.Status = jobs.JobStatusFailed
	got, _ := store.GetJob(ctx, "j")
	if got.Status != jobs.JobStatusPending {
		t.Error("store kept a reference to the caller's job")
	}

	if err := store.UpdateJobStatus(ctx, "j", jobs.JobStatusRunning, ""); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetJob(ctx, "j")
	if got.Status != jobs.JobStatusRunning {
		t.Errorf("Status = %s", got.Status)
	}
}

func ids(list []*jobs.MirrorJob) []string {
	out := make([]string, 0, len(list))
	for _, j := range list {
		out = append(out, j.JobID)
	}
	return out
}
