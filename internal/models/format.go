package models

import "fmt"

// FormatBytes renders a byte count for display ("1.5 MB")
func FormatBytes(n int64) string {
	if n <= 0 {
		return ""
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}

// FormatSpeed renders a transfer rate in KB/s for display ("1.2 MB/s").
// Non-positive rates render as unknown.
func FormatSpeed(kbps float64) string {
	bps := int64(kbps * 1024)
	if bps <= 0 {
		return "--"
	}
	return FormatBytes(bps) + "/s"
}

// FormatETA renders a second count as mm:ss or h:mm:ss.
// Negative values mean the ETA is unknown.
func FormatETA(seconds int) string {
	if seconds < 0 {
		return "--:--"
	}
	m, s := seconds/60, seconds%60
	h, m := m/60, m%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
