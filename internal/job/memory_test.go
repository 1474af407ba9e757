package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(provider.FamilyFirefly, "generate-images", testHandle)

	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
	}
	if saved.Handle != testHandle {
		t.Errorf("expected handle %+v, got %+v", testHandle, saved.Handle)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "nonexistent")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_FindByID_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := newTestJob()
	_ = repo.Save(ctx, job)

	found, _ := repo.FindByID(ctx, job.ID)
	found.Status = StatusFailed

	again, _ := repo.FindByID(ctx, job.ID)
	if again.Status != StatusPending {
		t.Errorf("expected stored status %s, got %s", StatusPending, again.Status)
	}
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Save(ctx, newTestJob())

	updated, err := repo.Update(ctx, "test", func(j *Job) error {
		j.AddAttempts(1)
		return j.Apply(jobs.StatusRunning, nil, nil)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusRunning || updated.Attempts != 1 {
		t.Errorf("expected running with 1 attempt, got %s with %d", updated.Status, updated.Attempts)
	}

	saved, _ := repo.FindByID(ctx, "test")
	if saved.Status != StatusRunning {
		t.Errorf("expected stored status %s, got %s", StatusRunning, saved.Status)
	}
}

func TestMemoryRepository_Update_ErrorDiscardsChanges(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Save(ctx, newTestJob())

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "test", func(j *Job) error {
		j.AddAttempts(3)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	saved, _ := repo.FindByID(ctx, "test")
	if saved.Attempts != 0 {
		t.Errorf("expected attempts to stay 0, got %d", saved.Attempts)
	}
}

func TestMemoryRepository_Update_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.Update(context.Background(), "missing", func(*Job) error { return nil })
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_Update_Concurrent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Save(ctx, newTestJob())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, "test", func(j *Job) error {
				j.AddAttempts(1)
				return nil
			})
		}()
	}
	wg.Wait()

	saved, _ := repo.FindByID(ctx, "test")
	if saved.Attempts != 50 {
		t.Errorf("expected 50 attempts, got %d", saved.Attempts)
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	older := NewWithID("older", provider.FamilyFirefly, "generate-images", testHandle)
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer := NewWithID("newer", provider.FamilyPhotoshop, "remove-background", testHandle)
	_ = repo.Save(ctx, older)
	_ = repo.Save(ctx, newer)

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list))
	}
	if list[0].ID != "newer" || list[1].ID != "older" {
		t.Errorf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestMemoryRepository_List_Empty(t *testing.T) {
	repo := NewMemoryRepository()

	list, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Save(ctx, newTestJob())

	if err := repo.Delete(ctx, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.FindByID(ctx, "test"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "test"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound on second delete, got %v", err)
	}
}

func TestMemoryRepository_Prune(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	old := NewWithID("job-old", provider.FamilyFirefly, "generate-images", testHandle)
	if err := old.TransitionTo(StatusSucceeded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	old.CompletedAt = now.Add(-2 * time.Hour)

	recent := NewWithID("job-recent", provider.FamilyFirefly, "generate-images", testHandle)
	if err := recent.TransitionTo(StatusFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active := NewWithID("job-active", provider.FamilyFirefly, "generate-images", testHandle)
	active.CreatedAt = now.Add(-3 * time.Hour)

	for _, j := range []*Job{old, recent, active} {
		if err := repo.Save(ctx, j); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	removed, err := repo.Prune(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 job removed, got %d", removed)
	}
	if _, err := repo.FindByID(ctx, "job-old"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected old job to be pruned, got %v", err)
	}
	for _, id := range []string{"job-recent", "job-active"} {
		if _, err := repo.FindByID(ctx, id); err != nil {
			t.Errorf("expected %s to be kept, got %v", id, err)
		}
	}
}
