package transfer

import (
	"regexp"
	"strconv"
	"strings"
)

// yt-dlp is run with --newline so every progress update arrives as its
// own stdout line:
//
//	[download]  42.1% of 10.00MiB at 1.23MiB/s ETA 00:45
//	[download] 100% of 10.00MiB in 00:08
//	[download] Destination: /downloads/Title [abc123].webm
var (
	downloadLineRe    = regexp.MustCompile(`^\[download\]\s+([\d.]+)% of ~?\s*([\d.]+)(KiB|MiB|GiB|TiB|B)`)
	destinationLineRe = regexp.MustCompile(`^\[download\] Destination:\s+(.+)$`)
)

// progressLine is one parsed yt-dlp progress update
type progressLine struct {
	Percent    float64
	TotalBytes int64
}

// parseProgressLine extracts progress from a yt-dlp output line.
// Returns false for lines that carry no progress information.
func parseProgressLine(line string) (progressLine, bool) {
	m := downloadLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return progressLine{}, false
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return progressLine{}, false
	}
	size, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return progressLine{}, false
	}

	return progressLine{
		Percent:    pct,
		TotalBytes: int64(size * float64(unitMultiplier(m[3]))),
	}, true
}

// parseDestinationLine extracts the staging path yt-dlp announces
// before it starts writing a stream
func parseDestinationLine(line string) (string, bool) {
	m := destinationLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func unitMultiplier(unit string) int64 {
	switch unit {
	case "KiB":
		return 1 << 10
	case "MiB":
		return 1 << 20
	case "GiB":
		return 1 << 30
	case "TiB":
		return 1 << 40
	default:
		return 1
	}
}
