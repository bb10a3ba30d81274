// Package fmtutil provides human-readable formatting for byte sizes,
// durations and Unix permission triples shown in listings and log lines.
package fmtutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FormatSize formats a byte count in human readable form (1024 base).
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// FormatRate formats a bytes/second rate.
func FormatRate(bytesPerSecond float64) string {
	return FormatSize(int64(bytesPerSecond)) + "/s"
}

// FormatDuration formats an elapsed duration as a compact clock string:
// "1.4s", "2m05s", "1h03m12s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		m := int(d.Minutes())
		s := int(d.Seconds()) - m*60
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		s := int(d.Seconds()) - h*3600 - m*60
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
}

// FormatPex renders a Unix permission triple as the familiar nine-character
// mode string, e.g. (7,5,4) -> "rwxr-xr--".
func FormatPex(owner, group, others uint8) string {
	var sb strings.Builder
	for _, digit := range [3]uint8{owner, group, others} {
		if digit&4 != 0 {
			sb.WriteByte('r')
		} else {
			sb.WriteByte('-')
		}
		if digit&2 != 0 {
			sb.WriteByte('w')
		} else {
			sb.WriteByte('-')
		}
		if digit&1 != 0 {
			sb.WriteByte('x')
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// TruncatePath truncates a file path to show only the last N components.
// Example: TruncatePath("/a/b/c/d/file.txt", 3) -> ".../c/d/file.txt"
func TruncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return path
	}
	relevant := parts[len(parts)-maxComponents:]
	return ".../" + strings.Join(relevant, "/")
}
