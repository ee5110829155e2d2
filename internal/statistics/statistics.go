package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains the counters of one removal batch.
type Statistics struct {
	ImagesQueued    int64
	ImagesProcessed int64
	ImagesFailed    int64
	PNGOutputs      int64
	JPEGOutputs     int64
	BytesWritten    int64

	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	ImagesPerSecond float64
	AverageFileSize int64

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance for a batch of queued images.
func NewStatistics(queued int) *Statistics {
	return &Statistics{
		ImagesQueued: int64(queued),
		StartTime:    time.Now(),
		Errors:       make([]StatError, 0),
	}
}

// RecordOutput counts one saved result of the given format ("PNG" or "JPEG").
func (s *Statistics) RecordOutput(format string, bytes int64) {
	atomic.AddInt64(&s.ImagesProcessed, 1)
	atomic.AddInt64(&s.BytesWritten, bytes)
	switch format {
	case "PNG":
		atomic.AddInt64(&s.PNGOutputs, 1)
	case "JPEG":
		atomic.AddInt64(&s.JPEGOutputs, 1)
	}
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	atomic.AddInt64(&s.ImagesFailed, 1)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates final statistics such as duration, images per second, and average file size.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.ImagesProcessed)
	written := atomic.LoadInt64(&s.BytesWritten)

	if s.Duration.Seconds() > 0 {
		s.ImagesPerSecond = float64(processed) / s.Duration.Seconds()
	}

	if processed > 0 {
		s.AverageFileSize = written / processed
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Background Removal Summary:

Images:
		Queued: %d
		Processed: %d
		Failed: %d
		PNG (transparent): %d
		JPEG (opaque): %d

Performance:
		Duration: %v
		Images/Second: %.2f
		Bytes Written: %s
		Average File Size: %s`,
		atomic.LoadInt64(&s.ImagesQueued),
		atomic.LoadInt64(&s.ImagesProcessed),
		atomic.LoadInt64(&s.ImagesFailed),
		atomic.LoadInt64(&s.PNGOutputs),
		atomic.LoadInt64(&s.JPEGOutputs),
		s.Duration.Round(time.Millisecond),
		s.ImagesPerSecond,
		FormatBytes(atomic.LoadInt64(&s.BytesWritten)),
		FormatBytes(s.AverageFileSize))
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// Snapshot returns the counters in a form suitable for JSON responses.
func (s *Statistics) Snapshot() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return map[string]interface{}{
		"queued":        atomic.LoadInt64(&s.ImagesQueued),
		"processed":     atomic.LoadInt64(&s.ImagesProcessed),
		"failed":        atomic.LoadInt64(&s.ImagesFailed),
		"png":           atomic.LoadInt64(&s.PNGOutputs),
		"jpeg":          atomic.LoadInt64(&s.JPEGOutputs),
		"bytes_written": atomic.LoadInt64(&s.BytesWritten),
		"duration_ms":   s.Duration.Milliseconds(),
	}
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
