package store

import (
	"time"

	"github.com/google/uuid"
)

// Path names a benchmark path in samples and records.
const (
	PathCPU = "cpu"
	PathGPU = "gpu"
)

// Sample is one timed run of a single path.
// Each sample is serialized as a JSON line in samples.jsonl.
type Sample struct {
	Path      string    `json:"path"`
	Millis    int64     `json:"millis"`
	Device    string    `json:"device,omitempty"`
	Image     string    `json:"image"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is a scored benchmark: one CPU and one GPU sample of the same image.
type Record struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Device    string    `json:"device"`
	Platform  string    `json:"platform,omitempty"`
	CPUMillis int64     `json:"cpuMillis"`
	GPUMillis int64     `json:"gpuMillis"`
	Score     int64     `json:"score"`
	Rank      string    `json:"rank"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecord returns a record with a fresh ID and the current time.
func NewRecord() *Record {
	return &Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
	}
}

// Validate checks that the record can be persisted.
func (r *Record) Validate() error {
	switch {
	case r.ID == "":
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	case r.Width <= 0 || r.Height <= 0:
		return &ValidationError{Field: "Width/Height", Reason: "must be positive"}
	case r.CPUMillis < 0 || r.GPUMillis < 0:
		return &ValidationError{Field: "Millis", Reason: "cannot be negative"}
	case r.Rank == "":
		return &ValidationError{Field: "Rank", Reason: "cannot be empty"}
	case r.Timestamp.IsZero():
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
