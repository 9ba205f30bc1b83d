package csv

import (
	"bufio"
	"io"
	"strings"
)

// QuotingWriter writes records with every field enclosed in double quotes
// and CRLF line endings. Embedded quotes are doubled.
type QuotingWriter struct {
	Comma rune
	w     *bufio.Writer
}

// NewQuotingWriter returns a writer that quotes every field.
func NewQuotingWriter(w io.Writer) *QuotingWriter {
	return &QuotingWriter{Comma: ',', w: bufio.NewWriter(w)}
}

// Write writes one record.
func (q *QuotingWriter) Write(record []string) error {
	for i, field := range record {
		if i > 0 {
			if _, err := q.w.WriteRune(q.Comma); err != nil {
				return err
			}
		}
		if err := q.w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := q.w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := q.w.WriteByte('"'); err != nil {
			return err
		}
	}
	_, err := q.w.WriteString("\r\n")
	return err
}

// Flush writes any buffered data to the underlying writer.
func (q *QuotingWriter) Flush() error {
	return q.w.Flush()
}
