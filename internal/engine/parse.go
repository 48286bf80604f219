// -----------------------------------------------------------------------
// Progress Parsing - extract progress fields from tool output lines
// -----------------------------------------------------------------------

package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// progressDelta is a partial update extracted from one output line. Nil
// fields were not present on the line and must not clear existing
// snapshot values.
type progressDelta struct {
	Percent          *int
	BytesTransferred *int64
	TotalBytes       *int64
	SpeedBytes       *int64
	ETASeconds       *int64
}

func (d *progressDelta) empty() bool {
	return d.Percent == nil && d.BytesTransferred == nil && d.TotalBytes == nil &&
		d.SpeedBytes == nil && d.ETASeconds == nil
}

var (
	// rsync progress: "1,234,567  45%  10.53MB/s  0:01:23" with an
	// optional "(xfr#N, to-chk=R/T)" suffix on newer versions.
	rsyncToChk   = regexp.MustCompile(`to-chk=(\d+)/(\d+)`)
	rsyncToCheck = regexp.MustCompile(`to-check=(\d+)/(\d+)`)
	rsyncBytes   = regexp.MustCompile(`^\s*([\d,]+)\s`)
	rsyncPercent = regexp.MustCompile(`([\d,]+)\s+(\d+)%`)
	rsyncSpeed   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)([KMG]B)/s`)
	rsyncETA     = regexp.MustCompile(`(\d+):(\d{2}):(\d{2})`)

	// rclone one-line stats:
	// "Transferred: 1.5 GiB / 3 GiB, 50%, 10.2 MiB/s, ETA 5m30s"
	rcloneTransferred = regexp.MustCompile(
		`Transferred:\s*([\d.]+)\s*([KMGT]i?B|B)\s*/\s*([\d.]+)\s*([KMGT]i?B|B)`)
	rclonePercent = regexp.MustCompile(`,\s*(\d+)%`)
	rcloneSpeed   = regexp.MustCompile(`([\d.]+)\s*([KMGT]i?B|B)/s`)
	rcloneETA     = regexp.MustCompile(`ETA\s+(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?`)
)

// unitMultiplier maps a size suffix to bytes. Binary suffixes (KiB) are
// powers of 1024, decimal ones (KB) powers of 1000; the two scales must
// not be conflated.
func unitMultiplier(unit string) int64 {
	switch unit {
	case "B":
		return 1
	case "KiB":
		return 1 << 10
	case "MiB":
		return 1 << 20
	case "GiB":
		return 1 << 30
	case "TiB":
		return 1 << 40
	case "KB":
		return 1e3
	case "MB":
		return 1e6
	case "GB":
		return 1e9
	case "TB":
		return 1e12
	}
	return 0
}

func parseSize(value, unit string) (int64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	mult := unitMultiplier(unit)
	if mult == 0 {
		return 0, false
	}
	return int64(f * float64(mult)), true
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// parseRsyncLine extracts progress fields from one rsync output chunk.
// Unreadable lines yield an empty delta, never an error.
func parseRsyncLine(line string) progressDelta {
	var d progressDelta

	// File-count progress gives the most stable percent.
	m := rsyncToChk.FindStringSubmatch(line)
	if m == nil {
		m = rsyncToCheck.FindStringSubmatch(line)
	}
	if m != nil {
		remaining, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && total > 0 {
			d.Percent = intPtr((total - remaining) * 100 / total)
		}
	}

	if m := rsyncPercent.FindStringSubmatch(line); m != nil {
		if b, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64); err == nil {
			d.BytesTransferred = int64Ptr(b)
		}
		if d.Percent == nil {
			if p, err := strconv.Atoi(m[2]); err == nil {
				d.Percent = intPtr(p)
			}
		}
	} else if m := rsyncBytes.FindStringSubmatch(line); m != nil && strings.Contains(line, "%") {
		if b, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64); err == nil {
			d.BytesTransferred = int64Ptr(b)
		}
	}

	if m := rsyncSpeed.FindStringSubmatch(line); m != nil {
		// rsync prints the unit as kB/s; normalize before the lookup.
		if s, ok := parseSize(m[1], strings.ToUpper(m[2])); ok {
			d.SpeedBytes = int64Ptr(s)
		}
	}

	if m := rsyncETA.FindStringSubmatch(line); m != nil {
		h, _ := strconv.ParseInt(m[1], 10, 64)
		mm, _ := strconv.ParseInt(m[2], 10, 64)
		s, _ := strconv.ParseInt(m[3], 10, 64)
		d.ETASeconds = int64Ptr(h*3600 + mm*60 + s)
	}

	return d
}

// parseRcloneLine extracts progress fields from one rclone stats line.
func parseRcloneLine(line string) progressDelta {
	var d progressDelta

	if !strings.Contains(line, "Transferred:") {
		return d
	}

	if m := rcloneTransferred.FindStringSubmatch(line); m != nil {
		if b, ok := parseSize(m[1], m[2]); ok {
			d.BytesTransferred = int64Ptr(b)
		}
		if t, ok := parseSize(m[3], m[4]); ok && t > 0 {
			d.TotalBytes = int64Ptr(t)
		}
	}

	if m := rclonePercent.FindStringSubmatch(line); m != nil {
		if p, err := strconv.Atoi(m[1]); err == nil {
			d.Percent = intPtr(p)
		}
	}

	if m := rcloneSpeed.FindStringSubmatch(line); m != nil {
		if s, ok := parseSize(m[1], m[2]); ok {
			d.SpeedBytes = int64Ptr(s)
		}
	}

	if m := rcloneETA.FindStringSubmatch(line); m != nil && strings.Contains(line, "ETA") {
		var total int64
		if m[1] != "" {
			h, _ := strconv.ParseInt(m[1], 10, 64)
			total += h * 3600
		}
		if m[2] != "" {
			mm, _ := strconv.ParseInt(m[2], 10, 64)
			total += mm * 60
		}
		if m[3] != "" {
			s, _ := strconv.ParseInt(m[3], 10, 64)
			total += s
		}
		if m[1] != "" || m[2] != "" || m[3] != "" {
			d.ETASeconds = int64Ptr(total)
		}
	}

	return d
}
