//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestAttendanceStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := pool.Store()

	if err := store.CreateStudent(ctx, database.Student{StudentID: "000004", Name: "Dana"}); err != nil {
		t.Fatalf("Failed to create student: %v", err)
	}
	err := store.CreateCourse(ctx, database.Course{
		CourseID: "CSE002",
		Name:     "Algorithms",
		Schedule: map[time.Weekday]database.SessionWindow{
			time.Sunday: {Start: "12:00", End: "13:00"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create course: %v", err)
	}
	if err := store.EnrollStudent(ctx, "000004", "CSE002"); err != nil {
		t.Fatalf("Failed to enroll: %v", err)
	}

	t.Run("CoursesForStudent", func(t *testing.T) {
		courses, err := store.GetCoursesForStudent(ctx, "000004")
		if err != nil {
			t.Fatalf("Failed to get courses: %v", err)
		}
		if len(courses) != 1 || courses[0].CourseID != "CSE002" {
			t.Fatalf("Expected [CSE002], got %+v", courses)
		}
		if w := courses[0].Schedule[time.Sunday]; w.Start != "12:00" || w.End != "13:00" {
			t.Errorf("Unexpected Sunday window %+v", w)
		}
	})

	t.Run("DuplicatePresent", func(t *testing.T) {
		rec := database.AttendanceRecord{
			ID: uuid.NewString(), StudentID: "000004", CourseID: "CSE002",
			Date: "2024-01-07", Timestamp: time.Date(2024, 1, 7, 12, 5, 0, 0, time.UTC),
			Status: database.StatusPresent,
		}
		if err := store.AppendAttendance(ctx, rec); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		rec.ID = uuid.NewString()
		if err := store.AppendAttendance(ctx, rec); !errors.Is(err, database.ErrDuplicateAttendance) {
			t.Errorf("Expected ErrDuplicateAttendance, got %v", err)
		}

		records, err := store.QueryAttendance(ctx, "000004")
		if err != nil {
			t.Fatalf("Failed to query: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("Expected 1 record, got %d", len(records))
		}
	})
}

func TestIdentityRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewIdentityRepository(pool)

	embedding := make([]float32, 512)
	for i := range embedding {
		embedding[i] = float32(i) / 512.0
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		err := repo.SaveIdentity(ctx, database.StoredIdentity{
			ContentHash: "abc123", Label: "Alice", Embedding: embedding, Model: "buffalo_l",
		})
		if err != nil {
			t.Fatalf("Failed to save identity: %v", err)
		}

		got, err := repo.GetIdentity(ctx, "abc123")
		if err != nil {
			t.Fatalf("Failed to get identity: %v", err)
		}
		if got == nil {
			t.Fatal("Expected identity, got nil")
		}
		if got.Label != "Alice" {
			t.Errorf("Expected label 'Alice', got '%s'", got.Label)
		}
		if len(got.Embedding) != 512 {
			t.Errorf("Expected 512 dimensions, got %d", len(got.Embedding))
		}
	})

	t.Run("Missing", func(t *testing.T) {
		got, err := repo.GetIdentity(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil, got %+v", got)
		}
	})

	t.Run("Prune", func(t *testing.T) {
		_ = repo.SaveIdentity(ctx, database.StoredIdentity{ContentHash: "def456", Label: "Bob", Embedding: embedding})

		deleted, err := repo.PruneIdentities(ctx, []string{"abc123"})
		if err != nil {
			t.Fatalf("Failed to prune: %v", err)
		}
		if deleted != 1 {
			t.Errorf("Expected 1 deleted, got %d", deleted)
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 remaining, got %d", count)
		}
	})
}
