package utils

import (
	"fmt"
	"time"
)

// ExportFilename names a finished export after the moment it completed
func ExportFilename(t time.Time, ext string) string {
	return fmt.Sprintf("voiceover-studio-%d%s", t.UnixMilli(), ext)
}

// Seconds converts a duration to fractional seconds for JSON payloads
func Seconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}

// FromSeconds converts fractional seconds from JSON payloads to a duration
func FromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
