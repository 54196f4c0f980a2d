package models

import (
	"fmt"
	"strings"
	"time"
)

// CatalogEntry is one remote document as listed by the catalog API.
// Identity is the (CourseID, ModuleID, Filename) triple.
type CatalogEntry struct {
	CourseID       int64  `json:"course_id" validate:"gte=0"`
	CourseFullname string `json:"course_fullname,omitempty"`
	ModuleID       int64  `json:"module_id" validate:"gte=0"`
	ModuleName     string `json:"module_name,omitempty"`
	Type           string `json:"type,omitempty"`
	Filename       string `json:"filename" validate:"required,excludesall=/\\,ne=.,ne=.."`
	TimeCreated    *int64 `json:"timecreated,omitempty"`
	TimeModified   *int64 `json:"timemodified,omitempty"`
}

// Ref returns the document-ref of the entry.
func (e CatalogEntry) Ref() DocumentRef {
	return DocumentRef{CourseID: e.CourseID, ModuleID: e.ModuleID, Filename: e.Filename}
}

// ObjectKey is the object storage key of the raw file.
func (e CatalogEntry) ObjectKey() string {
	return e.Ref().ObjectKey()
}

// MetaPrefix is the human-readable preamble prepended to the extracted text.
func (e CatalogEntry) MetaPrefix() string {
	var b strings.Builder
	if e.CourseFullname != "" {
		b.WriteString("Course: " + e.CourseFullname + "\n")
	}
	if e.ModuleName != "" {
		b.WriteString("Module: " + e.ModuleName + "\n")
	}
	if e.Filename != "" {
		b.WriteString("File: " + e.Filename + "\n")
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString("\n")
	return b.String()
}

// IsPDF reports whether the entry points at a PDF file.
func (e CatalogEntry) IsPDF() bool {
	return strings.HasSuffix(strings.ToLower(e.Filename), ".pdf")
}

// Equal compares every field, dereferencing the optional timestamps.
func (e CatalogEntry) Equal(o CatalogEntry) bool {
	return e.CourseID == o.CourseID &&
		e.CourseFullname == o.CourseFullname &&
		e.ModuleID == o.ModuleID &&
		e.ModuleName == o.ModuleName &&
		e.Type == o.Type &&
		e.Filename == o.Filename &&
		equalOptional(e.TimeCreated, o.TimeCreated) &&
		equalOptional(e.TimeModified, o.TimeModified)
}

func equalOptional(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Corpora is the full catalog snapshot returned by one poll.
type Corpora struct {
	MoodleFiles []CatalogEntry `json:"moodle_files"`
}

// Equal is order-sensitive: reordering counts as a change.
func (c *Corpora) Equal(o *Corpora) bool {
	if c == nil || o == nil {
		return c == nil && o == nil
	}
	if len(c.MoodleFiles) != len(o.MoodleFiles) {
		return false
	}
	for i := range c.MoodleFiles {
		if !c.MoodleFiles[i].Equal(o.MoodleFiles[i]) {
			return false
		}
	}
	return true
}

// DocumentRef scopes every chunk of one source document.
type DocumentRef struct {
	CourseID int64  `json:"course_id"`
	ModuleID int64  `json:"module_id"`
	Filename string `json:"filename"`
}

// ObjectKey builds moodle/{course}/{module}/{filename}. The filename is
// used verbatim, never cleaned.
func (r DocumentRef) ObjectKey() string {
	return fmt.Sprintf("moodle/%d/%d/%s", r.CourseID, r.ModuleID, r.Filename)
}

// PlainFilename reports whether the filename is a single path element.
func (r DocumentRef) PlainFilename() bool {
	return r.Filename != "" && r.Filename != "." && r.Filename != ".." &&
		!strings.ContainsAny(r.Filename, `/\`)
}

func (r DocumentRef) String() string {
	return r.ObjectKey()
}

// ChunkRef is the position of a chunk inside its document, starting at 0.
type ChunkRef struct {
	ChunkNumber int `json:"chunk_number"`
}

// Chunk is one bounded text segment of a document.
type Chunk struct {
	Text        string      `json:"text"`
	DocumentRef DocumentRef `json:"document-ref"`
	ChunkRef    ChunkRef    `json:"chunk-ref"`
}

// SparseVector holds strictly increasing indices and their weights.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Len returns the number of non-zero entries.
func (v SparseVector) Len() int {
	return len(v.Indices)
}

// IndexedRecord is a chunk with both of its vectors, as written to the vector store.
type IndexedRecord struct {
	ID     string
	Chunk  Chunk
	Dense  []float32
	Sparse SparseVector
}

// SyncRun is one reconciliation cycle as recorded in the journal.
type SyncRun struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Entries    int        `json:"entries"`
	Changed    bool       `json:"changed"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Chunks     int        `json:"chunks"`
	Error      string     `json:"error,omitempty"`
}
