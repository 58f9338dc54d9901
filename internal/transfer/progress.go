package transfer

import (
	"fmt"
	"time"

	"github.com/codedrop/codedrop/internal/ui"
)

// Progress is a point-in-time view of one transfer.
type Progress struct {
	Transferred int64
	Total       int64
	Elapsed     time.Duration
}

// Fraction returns the completed share in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return min(1, float64(p.Transferred)/float64(p.Total))
}

// BytesPerSecond returns the average throughput so far.
func (p Progress) BytesPerSecond() float64 {
	secs := p.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.Transferred) / secs
}

// ProgressFunc receives a Progress after every chunk.
type ProgressFunc func(Progress)

type meter struct {
	total int64
	start time.Time
	now   func() time.Time
}

func newMeter(total int64, now func() time.Time) meter {
	return meter{total: total, start: now(), now: now}
}

func (m meter) at(transferred int64) Progress {
	return Progress{
		Transferred: transferred,
		Total:       m.total,
		Elapsed:     m.now().Sub(m.start),
	}
}

// RenderSummary prints the final transfer table.
func RenderSummary(name string, p Progress) {
	fmt.Println()
	ui.RenderTransferSummary(ui.TransferSummary{
		Status:    ui.IconSuccess + " Complete",
		File:      name,
		TotalSize: ui.FormatSize(p.Total),
		Duration:  ui.FormatDuration(p.Elapsed),
		Speed:     ui.FormatSpeed(p.BytesPerSecond()),
	})
}
