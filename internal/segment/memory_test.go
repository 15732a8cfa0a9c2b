package segment

import (
	"context"
	"testing"
	"time"

	"github.com/maauso/audiosplit/internal/audio"
)

func newTestRun() *Run {
	return NewRun("a.mp3", audio.DefaultDuration)
}

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	run := newTestRun()

	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := repo.FindByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, saved.ID)
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	run := newTestRun()

	_ = repo.Save(ctx, run)
	_ = run.Start()
	_ = repo.Save(ctx, run)

	saved, _ := repo.FindByID(ctx, run.ID)
	if saved.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, saved.Status)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "nonexistent")
	if err != ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestMemoryRepository_FindByID_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	run := newTestRun()
	_ = repo.Save(ctx, run)

	found, _ := repo.FindByID(ctx, run.ID)
	_ = found.Start()

	original, _ := repo.FindByID(ctx, run.ID)
	if original.Status != StatusIdle {
		t.Error("modifying returned run should not affect repository")
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	runs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	first := newTestRun()
	second := newTestRun()
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	_ = repo.Save(ctx, second)
	_ = repo.Save(ctx, first)

	runs, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != first.ID || runs[1].ID != second.ID {
		t.Error("expected runs ordered by creation time")
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	run := newTestRun()
	_ = repo.Save(ctx, run)

	if err := repo.Delete(ctx, run.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.FindByID(ctx, run.ID); err != ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, run.ID); err != ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound on second delete, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			_ = repo.Save(ctx, newTestRun())
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_, _ = repo.List(ctx)
		}
		done <- true
	}()

	<-done
	<-done
}
