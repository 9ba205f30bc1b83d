package csv

import (
	"bytes"
	gocsv "encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Reading
// =============================================================================

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"file with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "a,b"...), "a,b"},
		{"file without BOM", []byte("a,b"), "a,b"},
		{"empty file", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM", []byte{0xEF, 0xBB, 'x'}, string([]byte{0xEF, 0xBB, 'x'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := io.ReadAll(SkipBOM(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestRead(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantWidth int
		wantRows  [][]string
		wantErr   bool
	}{
		{
			name:      "header and rows",
			input:     "a,b,c\n1,2,3\n4,5,6\n",
			wantWidth: 3,
			wantRows:  [][]string{{"1", "2", "3"}, {"4", "5", "6"}},
		},
		{
			name:      "short row padded",
			input:     "a,b,c\n1,2\n",
			wantWidth: 3,
			wantRows:  [][]string{{"1", "2", ""}},
		},
		{
			name:      "header only",
			input:     "a,b\n",
			wantWidth: 2,
		},
		{
			name:      "empty",
			input:     "",
			wantWidth: 0,
		},
		{
			name:      "quoted comma",
			input:     "a,b\n\"x,y\",z\n",
			wantWidth: 2,
			wantRows:  [][]string{{"x,y", "z"}},
		},
		{
			name:    "row wider than header",
			input:   "a,b\n1,2,3\n",
			wantErr: true,
		},
		{
			name:    "bare quote",
			input:   "a,b\n1,x\"y\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Read(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, tbl.Width())
			assert.Equal(t, tt.wantRows, tbl.Rows)
		})
	}
}

func TestRead_RaggedRowReportsLine(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n1,2\n1,2,3\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRaggedRow))

	var pe *gocsv.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Line)
}

func TestTableLine(t *testing.T) {
	tbl, err := Read(strings.NewReader("a\n1\n\n2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Line(0))
	assert.Equal(t, 4, tbl.Line(1))
	assert.Equal(t, 0, tbl.Line(5))
}

// =============================================================================
// Writing
// =============================================================================

func TestQuotingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewQuotingWriter(&buf)
	require.NoError(t, w.Write([]string{"id", "name"}))
	require.NoError(t, w.Write([]string{"1", `say "hi", ok`}))
	require.NoError(t, w.Write([]string{"2", ""}))
	require.NoError(t, w.Flush())

	want := "\"id\",\"name\"\r\n\"1\",\"say \"\"hi\"\", ok\"\r\n\"2\",\"\"\r\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.csv")
	in := &Table{Header: []string{"a", "b"}, Rows: [][]string{{"1", "x,y"}, {"NULL", "2"}}}

	require.NoError(t, WriteFile(path, in))

	out, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in.Header, out.Header)
	assert.Equal(t, in.Rows, out.Rows)
}

func TestWriteAtomic_FailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.csv")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	err := WriteAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
