package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatSize renders a byte count using binary units ("1.5 MiB").
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSpeed renders a throughput in bytes per second.
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

// FormatDuration renders d as "1h 2m 3s", "2m 3s" or "3s".
func FormatDuration(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	case d > 0 && d < time.Second:
		return "<1s"
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// Truncate shortens s to maxLen runes, ending with "..." when cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
