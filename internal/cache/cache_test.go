package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"dubber/pkg/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestNewCache(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCache_JobOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	record := &models.JobRecord{
		ID:       "job-1",
		State:    models.JobStateProcessing,
		Progress: 50,
		Message:  "Translating text...",
	}

	if err := cache.SetJob(ctx, record, 5*time.Minute); err != nil {
		t.Fatalf("SetJob failed: %v", err)
	}

	retrieved, err := cache.GetJob(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Retrieved record should not be nil")
	}
	if retrieved.State != record.State {
		t.Errorf("Expected state %s, got %s", record.State, retrieved.State)
	}
	if retrieved.Progress != record.Progress {
		t.Errorf("Expected progress %d, got %d", record.Progress, retrieved.Progress)
	}

	// Overwrite mirrors the latest transition
	record.State = models.JobStateCompleted
	record.Progress = 100
	record.ResultLocation = "outputs/job-1/dubbed_test.mp4"
	if err := cache.SetJob(ctx, record, 5*time.Minute); err != nil {
		t.Fatalf("SetJob overwrite failed: %v", err)
	}

	retrieved, err = cache.GetJob(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if retrieved.ResultLocation != record.ResultLocation {
		t.Errorf("Expected result location %s, got %s", record.ResultLocation, retrieved.ResultLocation)
	}
}

func TestCache_Miss(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	retrieved, err := cache.GetJob(context.Background(), "never-existed")
	if err != nil {
		t.Fatalf("GetJob on miss should not error: %v", err)
	}
	if retrieved != nil {
		t.Error("Cache miss should return nil record")
	}
}

func TestCache_DeleteJob(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	record := &models.JobRecord{ID: "job-1", State: models.JobStateStarted}
	if err := cache.SetJob(ctx, record, time.Minute); err != nil {
		t.Fatalf("SetJob failed: %v", err)
	}

	if err := cache.DeleteJob(ctx, record.ID); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}

	retrieved, err := cache.GetJob(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if retrieved != nil {
		t.Error("Deleted record should not be retrievable")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	record := &models.JobRecord{ID: "job-1", State: models.JobStateStarted}
	if err := cache.SetJob(ctx, record, time.Minute); err != nil {
		t.Fatalf("SetJob failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	retrieved, err := cache.GetJob(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if retrieved != nil {
		t.Error("Record should have expired")
	}
}
