package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutDirectories(t *testing.T) {
	l := New("/data/training_data/")

	assert.Equal(t, "/data/training_data", l.Incoming())
	assert.Equal(t, "/data/training_data_rejects", l.Rejects())
	assert.Equal(t, "/data/training_data_validation", l.Validation())
	assert.Equal(t, "/data/training_data_processed", l.Processed())
	assert.Equal(t, "/data/training_data_results", l.Results())
	assert.Equal(t, "/data/training_data_archive", l.ArchiveRoot())
	assert.Equal(t, "/data/training_data_validation/InputFile.csv", l.SnapshotPath("InputFile.csv"))
}

func TestCategories(t *testing.T) {
	l := New("/r")
	cats := l.Categories()
	require.Len(t, cats, 4)

	prefixes := make([]string, len(cats))
	for i, c := range cats {
		prefixes[i] = c.Prefix
	}
	assert.Equal(t, []string{"reject_", "validation_", "processed_", "results_"}, prefixes)
	assert.Equal(t, "/r_rejects", cats[0].Dir)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	names, err := ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)

	names, err = ListFiles(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestHasFiles(t *testing.T) {
	dir := t.TempDir()

	ok, err := HasFiles(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.csv"), []byte("a"), 0o644))
	ok, err = HasFiles(dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMoveInto(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0o644))

	dst, err := MoveInto(src, filepath.Join(dir, "out", "deeper"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "out", "deeper", "in.csv"), dst)
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestMove_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Move(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	assert.Error(t, err)
}

func TestMoveInto_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	dstDir := filepath.Join(dir, "rejects")

	for _, body := range []string{"first", "second", "third"} {
		src := filepath.Join(dir, "bad.csv")
		require.NoError(t, os.WriteFile(src, []byte(body), 0o644))
		_, err := MoveInto(src, dstDir)
		require.NoError(t, err)
	}

	names, err := ListFiles(dstDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad.1.csv", "bad.2.csv", "bad.csv"}, names)

	for name, want := range map[string]string{"bad.csv": "first", "bad.1.csv": "second", "bad.2.csv": "third"} {
		data, err := os.ReadFile(filepath.Join(dstDir, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(data), name)
	}
}

func TestFreePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), nil, 0o644))

	tests := []struct {
		name string
		want string
	}{
		{"new.csv", "new.csv"},
		{"README", "README.1"},
	}
	for _, tt := range tests {
		got, err := freePath(dir, tt.name)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, tt.want), got)
	}
}
