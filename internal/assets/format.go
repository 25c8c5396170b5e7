package assets

import (
	"fmt"
	"strconv"
)

// FormatBytes renders a byte count in decimal file units:
// "Zero KB", "512 bytes", "34 KB", "1.2 MB", "3.45 GB".
func FormatBytes(n int64) string {
	switch {
	case n == 0:
		return "Zero KB"
	case n < 0:
		return "-" + FormatBytes(-n)
	case n == 1:
		return "1 byte"
	case n < 1000:
		return strconv.FormatInt(n, 10) + " bytes"
	case n < 1000*1000:
		return fmt.Sprintf("%.0f KB", float64(n)/1e3)
	case n < 1000*1000*1000:
		return fmt.Sprintf("%.1f MB", float64(n)/1e6)
	case n < 1000*1000*1000*1000:
		return fmt.Sprintf("%.2f GB", float64(n)/1e9)
	default:
		return fmt.Sprintf("%.2f TB", float64(n)/1e12)
	}
}

// FormatProgress renders "{completed} of {total}" for progress display.
func FormatProgress(completed, total int64) string {
	return FormatBytes(completed) + " of " + FormatBytes(total)
}
