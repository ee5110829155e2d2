package tui

import (
	"fmt"
	"strings"
	"time"

	"remove-bg-go/internal/statistics"
)

type SummaryRow struct {
	Label string
	Value string
}

// StatsRows turns batch statistics into summary rows.
func StatsRows(s *statistics.Statistics) []SummaryRow {
	return []SummaryRow{
		{Label: "Images queued", Value: fmt.Sprintf("%d", s.ImagesQueued)},
		{Label: "Backgrounds removed", Value: fmt.Sprintf("%d", s.ImagesProcessed)},
		{Label: "Failed", Value: fmt.Sprintf("%d", s.ImagesFailed)},
		{Label: "Transparent PNG", Value: fmt.Sprintf("%d", s.PNGOutputs)},
		{Label: "Opaque JPEG", Value: fmt.Sprintf("%d", s.JPEGOutputs)},
		{Label: "Written", Value: statistics.FormatBytes(s.BytesWritten)},
		{Label: "Elapsed", Value: s.Duration.Round(time.Millisecond).String()},
	}
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth, valueWidth := 0, 0
	for _, row := range rows {
		labelWidth = max(labelWidth, len(row.Label))
		valueWidth = max(valueWidth, len(row.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}
	for _, row := range rows {
		line := fmt.Sprintf("%s | %s",
			labelStyle.Render(padRight(row.Label, labelWidth)),
			valueStyle.Render(padRight(row.Value, valueWidth)))
		lines = append(lines, line)
	}
	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
