// Package layout names the directories that hang off a dataset's staging
// root and provides the file moves every pipeline stage relies on.
//
// For a staging root R the layout is:
//
//	R                 incoming files
//	R_rejects         quarantined files
//	R_validation      export snapshot
//	R_processed       files loaded by a previous run
//	R_results         downstream outputs
//	R_archive/<prefix><date>_<time>/
package layout

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// Directory suffixes appended to the staging root.
const (
	SuffixRejects    = "_rejects"
	SuffixValidation = "_validation"
	SuffixProcessed  = "_processed"
	SuffixResults    = "_results"
	SuffixArchive    = "_archive"
)

// Category is an archivable sibling directory and the bucket prefix its
// files are archived under.
type Category struct {
	Name   string
	Dir    string
	Prefix string
}

// Layout resolves the directories of one staging root.
type Layout struct {
	Root string
}

// New returns the layout for root, cleaned.
func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) Incoming() string   { return l.Root }
func (l Layout) Rejects() string    { return l.Root + SuffixRejects }
func (l Layout) Validation() string { return l.Root + SuffixValidation }
func (l Layout) Processed() string  { return l.Root + SuffixProcessed }
func (l Layout) Results() string    { return l.Root + SuffixResults }
func (l Layout) ArchiveRoot() string {
	return l.Root + SuffixArchive
}

// SnapshotPath returns the export file location under R_validation.
func (l Layout) SnapshotPath(name string) string {
	return filepath.Join(l.Validation(), name)
}

// Categories returns the archivable directories in archive order.
func (l Layout) Categories() []Category {
	return []Category{
		{Name: "rejects", Dir: l.Rejects(), Prefix: "reject_"},
		{Name: "validation", Dir: l.Validation(), Prefix: "validation_"},
		{Name: "processed", Dir: l.Processed(), Prefix: "processed_"},
		{Name: "results", Dir: l.Results(), Prefix: "results_"},
	}
}

// ListFiles returns the names of the regular files directly inside dir,
// sorted. A missing directory yields no names and no error.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// HasFiles reports whether dir exists and holds at least one regular file.
func HasFiles(dir string) (bool, error) {
	names, err := ListFiles(dir)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// MoveInto moves src into dstDir under its own base name, creating dstDir
// if needed. An existing file is never replaced: when the name is taken the
// moved file gets a numeric suffix before its extension (bad.csv, bad.1.csv,
// bad.2.csv). The final path is returned.
func MoveInto(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dstDir, err)
	}
	dst, err := freePath(dstDir, filepath.Base(src))
	if err != nil {
		return "", err
	}
	if err := Move(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// freePath returns the first path in dir for name that does not exist yet.
func freePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; ; i++ {
		p := filepath.Join(dir, candidate)
		ok, err := Exists(p)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
		if !ok {
			return p, nil
		}
		candidate = fmt.Sprintf("%s.%d%s", stem, i, ext)
	}
}

// Move renames src to dst, falling back to copy and remove when the two
// paths sit on different filesystems.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
