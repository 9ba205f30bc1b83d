package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/ingestpipe/internal/archive"
	"github.com/JonMunkholm/ingestpipe/internal/config"
	"github.com/JonMunkholm/ingestpipe/internal/journal"
	"github.com/JonMunkholm/ingestpipe/internal/layout"
	"github.com/JonMunkholm/ingestpipe/internal/schema"
	"github.com/JonMunkholm/ingestpipe/internal/store"
	"github.com/JonMunkholm/ingestpipe/internal/validate"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testSchema = `{
  "ColName": {"a": "TEXT", "b": "TEXT", "c": "TEXT"},
  "NumberOfColumns": 3
}`

type testEnv struct {
	cfg      config.Config
	store    *store.Store
	training layout.Layout
}

// steppingClock advances one second per call so archive buckets never share
// a stamp.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	schemaDir := filepath.Join(dir, "schemas")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "schema_test.json"), []byte(testSchema), 0o644))

	cfg := config.Config{
		Paths: config.PathsConfig{
			TrainingDataPath:   filepath.Join(dir, "training_data"),
			PredictionDataPath: filepath.Join(dir, "prediction_data"),
			SchemaDir:          schemaDir,
		},
		Pipeline: config.PipelineConfig{
			MissingSentinel: "NULL",
			SnapshotFile:    "InputFile.csv",
			RunMaxWait:      100 * time.Millisecond,
		},
	}

	st, err := store.New(store.Options{Driver: config.DriverSQLite, Dir: filepath.Join(dir, "stores")})
	require.NoError(t, err)

	Clear()
	Register(Dataset{Name: "training", Label: "Training", SchemaID: "schema_test", Store: "training", Table: "training_t"})
	Register(Dataset{Name: "prediction", Label: "Prediction", SchemaID: "schema_test", Store: store.PredictionStore, Table: "prediction_t"})
	t.Cleanup(Clear)

	return &testEnv{cfg: cfg, store: st, training: layout.New(cfg.Paths.TrainingDataPath)}
}

func (e *testEnv) service(opts ...Option) *Service {
	return NewService(e.cfg, e.store, append([]Option{WithClock(steppingClock())}, opts...)...)
}

func stage(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	names, err := layout.ListFiles(dir)
	require.NoError(t, err)
	return names
}

// =============================================================================
// Run Tests
// =============================================================================

func TestService_Run_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	stage(t, env.training.Incoming(), map[string]string{
		"good1.csv": "a,b,c\n1,2,3\n4,5,6\n7,8,9\n",
		"good2.csv": "a,b,c\n10,,12\n13,14,15\n",
		"bad.csv":   "a,b\n1,2\n",
	})

	res, err := env.service().Run(context.Background(), "training")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 5, res.Rows)
	assert.Len(t, res.Loaded, 2)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "bad.csv", res.Rejected[0].File)
	assert.Equal(t, validate.StageColumnCount, res.Rejected[0].Stage)
	assert.Equal(t, []string{"a", "b", "c"}, res.AddedColumns)
	assert.Equal(t, []string{"good1.csv", "good2.csv"}, res.Processed)

	assert.Empty(t, listNames(t, env.training.Incoming()))
	assert.Equal(t, []string{"bad.csv"}, listNames(t, env.training.Rejects()))
	assert.Equal(t, []string{"good1.csv", "good2.csv"}, listNames(t, env.training.Processed()))

	assert.Equal(t, env.training.SnapshotPath("InputFile.csv"), res.SnapshotPath)
	assert.Equal(t, 5, res.SnapshotRows)
	data, err := os.ReadFile(res.SnapshotPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
	require.Len(t, lines, 6)
	assert.Equal(t, `"a","b","c"`, lines[0])
	assert.Contains(t, lines, `"10","NULL","12"`)

	n, err := env.store.Count(context.Background(), "training", "training_t")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestService_Run_SecondRunArchivesAndAccumulates(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service()
	ctx := context.Background()

	stage(t, env.training.Incoming(), map[string]string{
		"first.csv": "a,b,c\n1,2,3\n",
		"bad.csv":   "a\n1\n",
	})
	_, err := svc.Run(ctx, "training")
	require.NoError(t, err)

	stage(t, env.training.Incoming(), map[string]string{
		"second.csv": "a,b,c\n4,5,6\n7,8,9\n",
	})
	res, err := svc.Run(ctx, "training")
	require.NoError(t, err)

	// processed first.csv, rejected bad.csv and the previous snapshot
	assert.Equal(t, 3, res.Archived)
	assert.Empty(t, res.AddedColumns)
	assert.Equal(t, 3, res.SnapshotRows)
	assert.Empty(t, listNames(t, env.training.Rejects()))
	assert.Equal(t, []string{"second.csv"}, listNames(t, env.training.Processed()))

	buckets, err := os.ReadDir(env.training.ArchiveRoot())
	require.NoError(t, err)
	assert.Len(t, buckets, 3)
}

func TestService_Run_PredictionRebuildsTable(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service()
	ctx := context.Background()
	prediction := layout.New(env.cfg.Paths.PredictionDataPath)

	stage(t, prediction.Incoming(), map[string]string{"p1.csv": "a,b,c\n1,2,3\n2,3,4\n"})
	_, err := svc.Run(ctx, "prediction")
	require.NoError(t, err)

	stage(t, prediction.Incoming(), map[string]string{"p2.csv": "a,b,c\n9,9,9\n"})
	res, err := svc.Run(ctx, "prediction")
	require.NoError(t, err)

	assert.Equal(t, 1, res.SnapshotRows)
	n, err := env.store.Count(ctx, store.PredictionStore, "prediction_t")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestService_Run_RejectsFullyMissingColumn(t *testing.T) {
	env := newTestEnv(t)
	stage(t, env.training.Incoming(), map[string]string{
		"empty_b.csv": "a,b,c\n1,,3\n4, ,6\n",
		"ok.csv":      "a,b,c\n1,2,3\n",
	})

	res, err := env.service().Run(context.Background(), "training")
	require.NoError(t, err)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "empty_b.csv", res.Rejected[0].File)
	assert.Equal(t, validate.StageMissingColumn, res.Rejected[0].Stage)
	assert.Equal(t, 1, res.Rows)
}

func TestService_Run_SkipsWhenNothingStaged(t *testing.T) {
	env := newTestEnv(t)
	// leftovers from an earlier run must not be archived by a skipped run
	stage(t, env.training.Rejects(), map[string]string{"old.csv": "a,b,c\n"})

	res, err := env.service().Run(context.Background(), "training")
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, res.Archived)
	assert.Equal(t, []string{"old.csv"}, listNames(t, env.training.Rejects()))

	exists, err := layout.Exists(env.training.ArchiveRoot())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_Run_SchemaNotFoundTouchesNothing(t *testing.T) {
	env := newTestEnv(t)
	Clear()
	Register(Dataset{Name: "training", SchemaID: "schema_missing", Store: "training", Table: "training_t"})

	stage(t, env.training.Incoming(), map[string]string{"a.csv": "a,b,c\n1,2,3\n"})
	stage(t, env.training.Processed(), map[string]string{"old.csv": "a,b,c\n"})

	res, err := env.service().Run(context.Background(), "training")
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrNotFound))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "SCH001", MapError(err).Code)

	assert.Equal(t, []string{"a.csv"}, listNames(t, env.training.Incoming()))
	assert.Equal(t, []string{"old.csv"}, listNames(t, env.training.Processed()))
}

func TestService_Run_UnknownDataset(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.service().Run(context.Background(), "scoring")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrUnknownDataset))
}

func TestService_Run_RunInProgress(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service()
	stage(t, env.training.Incoming(), map[string]string{"a.csv": "a,b,c\n1,2,3\n"})

	require.True(t, svc.Limiter().TryAcquire("prediction", "other"))
	defer svc.Limiter().Release("prediction")

	res, err := svc.Run(context.Background(), "training")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrRunInProgress))
	assert.Equal(t, []string{"a.csv"}, listNames(t, env.training.Incoming()))
}

func TestService_Run_RecordsJournal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	j, err := journal.Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	stage(t, env.training.Incoming(), map[string]string{
		"good.csv": "a,b,c\n1,2,3\n4,5,6\n",
		"bad.csv":  "a,b\n1,2\n",
	})

	res, err := env.service(WithRecorder(j)).Run(ctx, "training")
	require.NoError(t, err)

	run, err := j.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusSucceeded, run.Status)
	assert.Equal(t, "training", run.Dataset)
	assert.NotNil(t, run.FinishedAt)

	files, err := j.RunFiles(ctx, res.RunID)
	require.NoError(t, err)
	byFile := make(map[string]journal.FileRecord)
	for _, f := range files {
		byFile[f.File] = f
	}
	assert.Equal(t, journal.OutcomeRejected, byFile["bad.csv"].Outcome)
	assert.Equal(t, validate.StageColumnCount, byFile["bad.csv"].Stage)
	assert.Equal(t, journal.OutcomeLoaded, byFile["good.csv"].Outcome)
	assert.Equal(t, 2, byFile["good.csv"].Rows)
}

// failingRecorder proves journal errors never fail a run.
type failingRecorder struct{}

func (failingRecorder) StartRun(context.Context, string, string, time.Time) error {
	return errors.New("journal down")
}

func (failingRecorder) RecordFile(context.Context, journal.FileRecord) error {
	return errors.New("journal down")
}

func (failingRecorder) FinishRun(context.Context, string, string, error, time.Time) error {
	return errors.New("journal down")
}

func TestService_Run_RecorderErrorsAreIgnored(t *testing.T) {
	env := newTestEnv(t)
	stage(t, env.training.Incoming(), map[string]string{"a.csv": "a,b,c\n1,2,3\n"})

	res, err := env.service(WithRecorder(failingRecorder{})).Run(context.Background(), "training")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
}

// =============================================================================
// Archive / Export Tests
// =============================================================================

func TestService_Archive(t *testing.T) {
	env := newTestEnv(t)
	stage(t, env.training.Results(), map[string]string{"model.txt": "x"})

	summary, err := env.service().Archive(context.Background(), "training")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Moved())
	assert.Empty(t, listNames(t, env.training.Results()))
}

func TestService_Export(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service()
	ctx := context.Background()

	stage(t, env.training.Incoming(), map[string]string{"a.csv": "a,b,c\n1,2,3\n"})
	_, err := svc.Run(ctx, "training")
	require.NoError(t, err)

	require.NoError(t, os.Remove(env.training.SnapshotPath("InputFile.csv")))

	path, n, err := svc.Export(ctx, "training")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, path)
}

// =============================================================================
// File Preservation Tests
// =============================================================================

func TestService_Run_SameNamedFilesAreNeverOverwritten(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(env.cfg, env.store, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	for _, n := range []string{"1", "2", "3"} {
		stage(t, env.training.Incoming(), map[string]string{
			"bad.csv":  "a,b\n" + n + ",x\n",
			"good.csv": "a,b,c\n" + n + ",2,3\n",
		})
		_, err := svc.Run(ctx, "training")
		require.NoError(t, err)
	}

	// One archive bucket per category; the third run's archive skips names
	// already in the bucket, so those files stay and later moves are suffixed.
	bucket := filepath.Join(env.training.ArchiveRoot(), "reject_2024-03-01_09.00.00")
	assert.Equal(t, []string{"bad.csv"}, listNames(t, bucket))
	assert.Equal(t, []string{"bad.1.csv", "bad.csv"}, listNames(t, env.training.Rejects()))
	assert.Equal(t, []string{"good.1.csv", "good.csv"}, listNames(t, env.training.Processed()))

	contents := func(path string) string {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "a,b\n1,x\n", contents(filepath.Join(bucket, "bad.csv")))
	assert.Equal(t, "a,b\n2,x\n", contents(filepath.Join(env.training.Rejects(), "bad.csv")))
	assert.Equal(t, "a,b\n3,x\n", contents(filepath.Join(env.training.Rejects(), "bad.1.csv")))
}

func TestService_Run_ArchiveBucketUsesRunStart(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service()
	ctx := context.Background()

	stage(t, env.training.Incoming(), map[string]string{"bad.csv": "a\n1\n"})
	_, err := svc.Run(ctx, "training")
	require.NoError(t, err)

	stage(t, env.training.Incoming(), map[string]string{"bad.csv": "a\n2\n"})
	res, err := svc.Run(ctx, "training")
	require.NoError(t, err)

	want := "reject_" + res.StartedAt.Format(archive.StampLayout)
	assert.DirExists(t, filepath.Join(env.training.ArchiveRoot(), want))
}
