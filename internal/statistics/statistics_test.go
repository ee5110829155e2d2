package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordOutputAndFinalize(t *testing.T) {
	s := NewStatistics(3)
	s.RecordOutput("PNG", 2048)
	s.RecordOutput("JPEG", 1024)
	s.AddError("c.png", "decode", "unexpected EOF")
	s.Finalize()

	assert.Equal(t, int64(3), s.ImagesQueued)
	assert.Equal(t, int64(2), s.ImagesProcessed)
	assert.Equal(t, int64(1), s.ImagesFailed)
	assert.Equal(t, int64(1), s.PNGOutputs)
	assert.Equal(t, int64(1), s.JPEGOutputs)
	assert.Equal(t, int64(1536), s.AverageFileSize)

	summary := s.GetSummary()
	assert.Contains(t, summary, "Processed: 2")
	assert.Contains(t, summary, "Bytes Written: 3.0 KB")

	assert.Contains(t, s.GetErrorSummary(), "decode: c.png - unexpected EOF")
	assert.Equal(t, int64(2), s.Snapshot()["processed"])
}

func TestErrorSummaryWithoutErrors(t *testing.T) {
	assert.Equal(t, "No errors occurred during processing", NewStatistics(0).GetErrorSummary())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
}
