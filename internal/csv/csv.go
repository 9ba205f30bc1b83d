// Package csv reads staged delimited files and writes them back, either in
// place after cleaning or as the fully quoted export snapshot.
package csv

import (
	"bufio"
	"bytes"
	gocsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrRaggedRow is returned when a data row has more fields than the header.
var ErrRaggedRow = errors.New("row has more fields than header")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed file: the header row and the data rows beneath it.
// Every row is padded to the header width.
type Table struct {
	Header []string
	Rows   [][]string

	lines []int
}

// Width is the column count of the file, taken from its header.
func (t *Table) Width() int {
	return len(t.Header)
}

// Line returns the 1-based source line on which data row i starts.
func (t *Table) Line(i int) int {
	if i < 0 || i >= len(t.lines) {
		return 0
	}
	return t.lines[i]
}

// SkipBOM returns a reader positioned after a leading UTF-8 byte order mark,
// if r starts with one. Excel exports on Windows commonly carry it.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// Read parses a comma delimited stream. An empty stream yields a Table with
// no header. A quoting error or a row wider than the header fails the parse.
func Read(r io.Reader) (*Table, error) {
	cr := gocsv.NewReader(SkipBOM(r))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	t := &Table{}
	header, err := cr.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	t.Header = header

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(rec) > len(header) {
			return nil, &gocsv.ParseError{StartLine: line, Line: line, Column: len(header) + 1, Err: ErrRaggedRow}
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		t.Rows = append(t.Rows, rec)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

// IsParseError reports whether err came from malformed file content rather
// than from the filesystem.
func IsParseError(err error) bool {
	var pe *gocsv.ParseError
	return errors.As(err, &pe)
}

// ReadFile opens and parses path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// WriteFile replaces path with t using minimal quoting and LF line endings.
func WriteFile(path string, t *Table) error {
	return WriteAtomic(path, func(w io.Writer) error {
		cw := gocsv.NewWriter(w)
		if t.Header != nil {
			if err := cw.Write(t.Header); err != nil {
				return err
			}
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// WriteAtomic writes through a temporary file in path's directory and
// renames it over path once fn succeeds. On failure path is left as it was.
func WriteAtomic(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
