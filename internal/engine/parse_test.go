package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRsyncLine_ToChk(t *testing.T) {
	d := parseRsyncLine("  1,048,576  45%   10.53MB/s    0:01:23 (xfr#42, to-chk=55/100)")

	require.NotNil(t, d.Percent)
	assert.Equal(t, 45, *d.Percent, "to-chk should win: (100-55)*100/100")
	require.NotNil(t, d.BytesTransferred)
	assert.Equal(t, int64(1048576), *d.BytesTransferred)
	require.NotNil(t, d.SpeedBytes)
	assert.Equal(t, int64(10.53*1e6), *d.SpeedBytes)
	require.NotNil(t, d.ETASeconds)
	assert.Equal(t, int64(83), *d.ETASeconds)
}

func TestParseRsyncLine_ToChkDerivedPercent(t *testing.T) {
	d := parseRsyncLine("  3,145,728  99%   8.00MB/s    0:00:01 (xfr#7, to-chk=3/4)")

	require.NotNil(t, d.Percent)
	// File-count percent overrides the inline 99%
	assert.Equal(t, 25, *d.Percent)
}

func TestParseRsyncLine_BarePercent(t *testing.T) {
	d := parseRsyncLine("     524,288  50%    5.00MB/s    0:00:10")

	require.NotNil(t, d.Percent)
	assert.Equal(t, 50, *d.Percent)
	require.NotNil(t, d.BytesTransferred)
	assert.Equal(t, int64(524288), *d.BytesTransferred)
}

func TestParseRsyncLine_LowercaseSpeedUnit(t *testing.T) {
	// rsync's human-readable mode prints sub-MB rates as kB/s
	d := parseRsyncLine("    524,288  50%  437.22kB/s    0:00:10")

	require.NotNil(t, d.SpeedBytes)
	assert.Equal(t, int64(437.22*1e3), *d.SpeedBytes)

	d = parseRsyncLine("  1,000,000  10%  1.50gb/s  0:00:01")
	require.NotNil(t, d.SpeedBytes)
	assert.Equal(t, int64(1.5*1e9), *d.SpeedBytes)
}

func TestParseRsyncLine_ToCheckSpelling(t *testing.T) {
	d := parseRsyncLine("  100  10%  1.00KB/s  0:00:01 (xfr#1, to-check=9/10)")

	require.NotNil(t, d.Percent)
	assert.Equal(t, 10, *d.Percent)
}

func TestParseRsyncLine_ZeroTotalFiles(t *testing.T) {
	d := parseRsyncLine("garbage to-chk=0/0 garbage")
	assert.Nil(t, d.Percent, "zero total must not divide")
}

func TestParseRsyncLine_Unparseable(t *testing.T) {
	for _, line := range []string{
		"",
		"sending incremental file list",
		"some/random/file.txt",
		"total size is 1,048,576  speedup is 1.00",
	} {
		d := parseRsyncLine(line)
		assert.True(t, d.empty(), "line %q should yield no delta", line)
	}
}

func TestParseRcloneLine_BinaryUnits(t *testing.T) {
	d := parseRcloneLine("Transferred:   	  1.5 GiB / 3 GiB, 50%, 10 MiB/s, ETA 2m33s")

	require.NotNil(t, d.BytesTransferred)
	assert.Equal(t, int64(1.5*(1<<30)), *d.BytesTransferred)
	require.NotNil(t, d.TotalBytes)
	assert.Equal(t, int64(3*(1<<30)), *d.TotalBytes)
	require.NotNil(t, d.Percent)
	assert.Equal(t, 50, *d.Percent)
	require.NotNil(t, d.SpeedBytes)
	assert.Equal(t, int64(10*(1<<20)), *d.SpeedBytes)
	require.NotNil(t, d.ETASeconds)
	assert.Equal(t, int64(153), *d.ETASeconds)
}

func TestParseRcloneLine_DecimalUnits(t *testing.T) {
	d := parseRcloneLine("Transferred:        500 MB / 1 GB, 50%, 25 MB/s, ETA 20s")

	require.NotNil(t, d.BytesTransferred)
	assert.Equal(t, int64(500*1e6), *d.BytesTransferred)
	require.NotNil(t, d.TotalBytes)
	assert.Equal(t, int64(1e9), *d.TotalBytes)
	require.NotNil(t, d.SpeedBytes)
	assert.Equal(t, int64(25*1e6), *d.SpeedBytes)
	require.NotNil(t, d.ETASeconds)
	assert.Equal(t, int64(20), *d.ETASeconds)
}

func TestParseRcloneLine_ETACombinations(t *testing.T) {
	tests := []struct {
		line string
		want int64
	}{
		{"Transferred: 1 MiB / 2 MiB, 50%, 1 MiB/s, ETA 1h2m3s", 3723},
		{"Transferred: 1 MiB / 2 MiB, 50%, 1 MiB/s, ETA 1h", 3600},
		{"Transferred: 1 MiB / 2 MiB, 50%, 1 MiB/s, ETA 45s", 45},
		{"Transferred: 1 MiB / 2 MiB, 50%, 1 MiB/s, ETA 2m", 120},
	}
	for _, tt := range tests {
		d := parseRcloneLine(tt.line)
		require.NotNil(t, d.ETASeconds, tt.line)
		assert.Equal(t, tt.want, *d.ETASeconds, tt.line)
	}
}

func TestParseRcloneLine_NotAStatsLine(t *testing.T) {
	d := parseRcloneLine("2026/01/02 10:00:00 INFO  : file.txt: Copied (new)")
	assert.True(t, d.empty())
}

func TestUnitMultiplier_DistinguishesScales(t *testing.T) {
	assert.Equal(t, int64(1024), unitMultiplier("KiB"))
	assert.Equal(t, int64(1000), unitMultiplier("KB"))
	assert.Equal(t, int64(1<<40), unitMultiplier("TiB"))
	assert.Equal(t, int64(1e12), unitMultiplier("TB"))
	assert.Equal(t, int64(0), unitMultiplier("XB"))
}
