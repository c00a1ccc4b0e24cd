// Package report serializes inventory reports into CSV artifacts.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/yairfalse/kirja/pkg/inventory"
)

const fileTimestampLayout = "02-01-2006-15-04-05"

// Artifacts are the local paths of one written report.
type Artifacts struct {
	Timestamped string
	Latest      string
}

// Paths returns both paths, timestamped first.
func (a Artifacts) Paths() []string {
	return []string{a.Timestamped, a.Latest}
}

// Writer writes reports under one directory.
type Writer struct {
	fs       afero.Fs
	dir      string
	location *time.Location
}

// NewWriter creates a writer. File name timestamps are rendered in loc
// (UTC when nil).
func NewWriter(fs afero.Fs, dir string, loc *time.Location) *Writer {
	if loc == nil {
		loc = time.UTC
	}
	return &Writer{fs: fs, dir: dir, location: loc}
}

// TimestampedName returns <Kind>-Inventory-<DD-MM-YYYY-HH-MM-SS>.csv.
func TimestampedName(kind inventory.Kind, t time.Time) string {
	return fmt.Sprintf("%s-Inventory-%s.csv", kind, t.Format(fileTimestampLayout))
}

// LatestName returns Latest-<Kind>Inventory.csv.
func LatestName(kind inventory.Kind) string {
	return fmt.Sprintf("Latest-%sInventory.csv", kind)
}

// Encode renders the header row and every record, CRLF terminated.
func Encode(report *inventory.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(report.Header()); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if err := w.WriteAll(report.Rows()); err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes report once and writes the same bytes to the timestamped
// and the latest file. The timestamp is the report's generation time.
func (w *Writer) Write(report *inventory.Report) (Artifacts, error) {
	data, err := Encode(report)
	if err != nil {
		return Artifacts{}, err
	}

	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("create output dir: %w", err)
	}

	kind := report.Schema.Kind
	a := Artifacts{
		Timestamped: filepath.Join(w.dir, TimestampedName(kind, report.GeneratedAt.In(w.location))),
		Latest:      filepath.Join(w.dir, LatestName(kind)),
	}
	for _, path := range a.Paths() {
		if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
			return Artifacts{}, fmt.Errorf("write %s: %w", path, err)
		}
	}
	return a, nil
}
