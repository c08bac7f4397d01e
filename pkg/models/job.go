package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a translation job.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusTranslating JobStatus = "translating"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// OutputFormat is the document type produced for a job.
type OutputFormat string

const (
	FormatDOCX OutputFormat = "docx"
	FormatPDF  OutputFormat = "pdf"
)

// ParseOutputFormat normalizes a client supplied format. Empty means docx.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch OutputFormat(s) {
	case "", FormatDOCX:
		return FormatDOCX, true
	case FormatPDF:
		return FormatPDF, true
	default:
		return "", false
	}
}

// Ext returns the file extension without the dot.
func (f OutputFormat) Ext() string { return string(f) }

// ContentType returns the MIME type served on download.
func (f OutputFormat) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

// Chapter is one unit of source text. IDs define document order.
type Chapter struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// JobSpec is everything needed to create a job.
type JobSpec struct {
	Chapters       []Chapter
	TargetLanguage string
	OutputFormat   OutputFormat
}

// Job tracks an asynchronous translation. Clients poll
// GET /api/translation/status/{job_id} until status is completed or failed.
type Job struct {
	ID             uuid.UUID    `json:"job_id"`
	Status         JobStatus    `json:"status"`
	Chapters       []Chapter    `json:"-"`
	TargetLanguage string       `json:"target_language"`
	OutputFormat   OutputFormat `json:"output_format"`
	Progress       float64      `json:"progress"`
	CurrentChapter int          `json:"current_chapter"`
	TotalChapters  int          `json:"total_chapters"`
	Message        string       `json:"message"`
	OutputPath     *string      `json:"-"`
	ErrorMessage   *string      `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Chapters != nil {
		c.Chapters = append([]Chapter(nil), j.Chapters...)
	}
	if j.OutputPath != nil {
		p := *j.OutputPath
		c.OutputPath = &p
	}
	if j.ErrorMessage != nil {
		m := *j.ErrorMessage
		c.ErrorMessage = &m
	}
	return &c
}
