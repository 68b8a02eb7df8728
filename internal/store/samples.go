package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SamplesFile is the name of the sample log inside a data directory.
const SamplesFile = "samples.jsonl"

// SampleWriter appends samples to <baseDir>/samples.jsonl.
// Every Write reaches the file before returning, so readers of the log see a
// sample as soon as it is recorded. It is safe for concurrent use.
type SampleWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewSampleWriter opens the sample log for appending, creating it if needed.
func NewSampleWriter(baseDir string) (*SampleWriter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	path := filepath.Join(baseDir, SamplesFile)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample log: %w", err)
	}

	return &SampleWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 16*1024),
		path:   path,
	}, nil
}

// Write appends one sample line and flushes it to the file.
func (sw *SampleWriter) Write(s Sample) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}
	if _, err := sw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	if err := sw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := sw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush sample: %w", err)
	}
	return nil
}

// Flush writes any buffered data and syncs the file to disk.
func (sw *SampleWriter) Flush() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush sample log: %w", err)
	}
	if err := sw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync sample log: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file.
func (sw *SampleWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.writer.Flush(); err != nil {
		sw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := sw.file.Close(); err != nil {
		return fmt.Errorf("failed to close sample log: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the sample log.
func (sw *SampleWriter) Path() string {
	return sw.path
}

// ReadSamples reads every sample in <baseDir>/samples.jsonl. A missing log
// yields an empty slice.
func ReadSamples(baseDir string) ([]Sample, error) {
	file, err := os.Open(filepath.Join(baseDir, SamplesFile))
	if os.IsNotExist(err) {
		return []Sample{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to open sample log: %w", err)
	}
	defer file.Close()

	samples := []Sample{}
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample on line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sample log: %w", err)
	}
	return samples, nil
}

// DeleteSamples removes the sample log. A missing log is not an error.
func DeleteSamples(baseDir string) error {
	err := os.Remove(filepath.Join(baseDir, SamplesFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete sample log: %w", err)
	}
	return nil
}
