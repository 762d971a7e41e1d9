package runs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/jefeworks/jefe/internal/config"
	"github.com/jefeworks/jefe/internal/database"
	"github.com/jefeworks/jefe/internal/scheduler"
)

func testDBRuns(t *testing.T) *database.DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &config.DatabaseConfig{
		Path: dbPath,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func startedRecord(id, workflowID string, startedAt time.Time) *Record {
	return &Record{
		ID:           id,
		WorkflowID:   workflowID,
		WorkflowName: "wf-" + workflowID,
		Status:       StatusRunning,
		StartedAt:    startedAt,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := &Record{
		ID:            "run-1",
		WorkflowID:    "wf-1",
		WorkflowName:  "nightly-backup",
		Status:        StatusRunning,
		StartedAt:     now,
		WorkspacePath: "/tmp/workspaces/nightly-backup/20240615",
	}

	require.NoError(t, store.Create(ctx, rec))

	retrieved, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", retrieved.ID)
	require.Equal(t, "wf-1", retrieved.WorkflowID)
	require.Equal(t, "nightly-backup", retrieved.WorkflowName)
	require.Equal(t, StatusRunning, retrieved.Status)
	require.True(t, retrieved.StartedAt.Equal(now))
	require.Nil(t, retrieved.CompletedAt)
	require.Equal(t, "/tmp/workspaces/nightly-backup/20240615", retrieved.WorkspacePath)
}

func TestStore_GetNotFound(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Finish(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	ctx := context.Background()

	started := time.Now().UTC().Add(-3 * time.Second).Truncate(time.Second)
	require.NoError(t, store.Create(ctx, startedRecord("run-2", "wf-1", started)))

	completed := started.Add(2500 * time.Millisecond)
	require.NoError(t, store.Finish(ctx, "run-2", StatusCompleted, completed, "all good", ""))

	retrieved, err := store.Get(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, retrieved.Status)
	require.NotNil(t, retrieved.CompletedAt)
	require.Equal(t, 2500, retrieved.DurationMs)
	require.Equal(t, "all good", retrieved.Output)
	require.Empty(t, retrieved.Error)
}

func TestStore_FinishFailed(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Create(ctx, startedRecord("run-3", "wf-2", started)))

	require.NoError(t, store.Finish(ctx, "run-3", StatusFailed, started.Add(time.Second), "", "pipeline exploded"))

	retrieved, err := store.Get(ctx, "run-3")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, retrieved.Status)
	require.Equal(t, "pipeline exploded", retrieved.Error)
}

func TestStore_FinishMissing(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)

	err := store.Finish(context.Background(), "missing", StatusCompleted, time.Now().UTC(), "", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, store.Create(ctx, startedRecord("run-a", "wf-1", base)))
	require.NoError(t, store.Create(ctx, startedRecord("run-b", "wf-1", base.Add(time.Minute))))
	require.NoError(t, store.Create(ctx, startedRecord("run-c", "wf-2", base.Add(2*time.Minute))))
	require.NoError(t, store.Finish(ctx, "run-a", StatusFailed, base.Add(time.Second), "", "boom"))

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	require.Equal(t, "run-c", all[0].ID)
	require.Equal(t, "run-a", all[2].ID)

	byWorkflow, err := store.List(ctx, ListOptions{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)

	failed, err := store.List(ctx, ListOptions{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "run-a", failed[0].ID)

	limited, err := store.List(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "run-b", limited[0].ID)
}

func TestStore_CountByStatus(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Create(ctx, startedRecord("run-1", "wf-1", base)))
	require.NoError(t, store.Create(ctx, startedRecord("run-2", "wf-1", base)))
	require.NoError(t, store.Finish(ctx, "run-1", StatusCompleted, base.Add(time.Second), "", ""))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[StatusCompleted])
	require.Equal(t, 1, counts[StatusRunning])
}

func TestSink_LifecycleRoundTrip(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	sink := NewSink(store)
	ctx := context.Background()

	w := &scheduler.Workflow{
		ID:   "wf-9",
		Name: "observed",
	}

	startedAt := time.Now().UTC().Truncate(time.Second)
	runID := sink.RunStarted(w, startedAt, "/tmp/ws")
	require.NotEmpty(t, runID)

	sink.RunFinished(runID, "output text", nil)

	rec, err := store.Get(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, rec.Status)
	require.Equal(t, "output text", rec.Output)

	// A failed run records its error message.
	failedID := sink.RunStarted(w, startedAt, "")
	sink.RunFinished(failedID, "", errors.New("agent timeout"))

	rec, err = store.Get(ctx, failedID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, "agent timeout", rec.Error)
}

func TestSink_FinishedWithoutIDIsNoop(t *testing.T) {
	db := testDBRuns(t)
	sink := NewSink(NewStore(db))

	// Must not panic or insert anything.
	sink.RunFinished("", "output", nil)

	all, err := NewStore(db).List(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStore_Prune(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-60 * 24 * time.Hour).Truncate(time.Second)
	recent := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, startedRecord("run-old", "wf-1", old)))
	require.NoError(t, store.Finish(ctx, "run-old", StatusCompleted, old.Add(time.Second), "", ""))
	require.NoError(t, store.Create(ctx, startedRecord("run-old-running", "wf-1", old)))
	require.NoError(t, store.Create(ctx, startedRecord("run-recent", "wf-1", recent)))

	archiveDir := filepath.Join(t.TempDir(), "archive")
	pruned, err := store.Prune(ctx, 30*24*time.Hour, archiveDir)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	// The terminal old record is gone; running and recent survive.
	_, err = store.Get(ctx, "run-old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "run-old-running")
	require.NoError(t, err)
	_, err = store.Get(ctx, "run-recent")
	require.NoError(t, err)

	// The archive holds the pruned record.
	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(archiveDir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	var archived Record
	require.NoError(t, json.Unmarshal(data, &archived))
	require.Equal(t, "run-old", archived.ID)
}

func TestStore_PruneZeroRetentionDisabled(t *testing.T) {
	db := testDBRuns(t)
	store := NewStore(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-365 * 24 * time.Hour)
	require.NoError(t, store.Create(ctx, startedRecord("run-old", "wf-1", old)))
	require.NoError(t, store.Finish(ctx, "run-old", StatusCompleted, old.Add(time.Second), "", ""))

	pruned, err := store.Prune(ctx, 0, "")
	require.NoError(t, err)
	require.Zero(t, pruned)

	_, err = store.Get(ctx, "run-old")
	require.NoError(t, err)
}
