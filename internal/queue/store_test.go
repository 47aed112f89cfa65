package queue_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"forge/internal/config"
	"forge/internal/queue"
)

func openTestStore(t *testing.T) *queue.Store {
	t.Helper()
	cfg := config.Default()
	cfg.DB.Path = filepath.Join(t.TempDir(), "forge.db")
	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnqueueAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, queue.Job{Type: queue.TypeGenerate, ModelID: "m1", Prompt: "cat"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Prompt != "cat" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestClaimNextPendingIsAtomic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const seeded = 10
	for i := 0; i < seeded; i++ {
		if _, err := store.Enqueue(ctx, queue.Job{Type: queue.TypeGenerate, ModelID: "m1", Prompt: "p"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	claimed := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	claimLoop := func() {
		defer wg.Done()
		for {
			job, err := store.ClaimNextPending(ctx)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if job == nil {
				return
			}
			mu.Lock()
			claimed[job.ID]++
			mu.Unlock()
		}
	}

	wg.Add(2)
	go claimLoop()
	go claimLoop()
	wg.Wait()

	if len(claimed) != seeded {
		t.Fatalf("expected %d distinct jobs claimed, got %d", seeded, len(claimed))
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("job %s claimed %d times", id, count)
		}
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if summary.Processing != seeded {
		t.Fatalf("expected %d processing jobs, got %d", seeded, summary.Processing)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, queue.Job{Type: queue.TypeGenerate, ModelID: "m1", Prompt: "p"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	cancelled, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled {
		t.Fatal("expected cancel to fail once job left pending")
	}
}

func TestMarkCompletedSetsFinalProgress(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, queue.Job{Type: queue.TypeGenerate, ModelID: "m1", Prompt: "p"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkCompleted(ctx, job.ID, 1200); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != queue.StatusCompleted || got.Progress != 1.0 {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, queue.Job{Type: queue.TypeGenerate, ModelID: "m1", Prompt: "p"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	n, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", n)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if summary.Pending != 1 || summary.Processing != 0 {
		t.Fatalf("unexpected summary after reclaim: %+v", summary)
	}
}

func TestAppendImageAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, queue.Job{Type: queue.TypeGenerate, ModelID: "m1", Prompt: "p"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.AppendImage(ctx, queue.GeneratedImage{JobID: job.ID, Index: 0, MIME: "image/png", FilePath: "/tmp/x.png"}); err != nil {
		t.Fatalf("append image: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Images) != 1 || got.Images[0].MIME != "image/png" {
		t.Fatalf("unexpected images: %+v", got.Images)
	}
}
