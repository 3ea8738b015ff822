package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const gib = 1 << 30

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatGiB formats a byte count in GiB with two decimals.
func FormatGiB(n int64) string {
	return fmt.Sprintf("%.2f GiB", float64(n)/gib)
}

// Banner writes a boxed section header.
func Banner(w io.Writer, title string) {
	rule := strings.Repeat("=", 44)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, rule)
}

// Separator writes a thin rule between header fields and body.
func Separator(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("-", 44))
}

// Preview writes up to n keys, followed by a count of the rest.
func Preview(w io.Writer, keys []string, n int) {
	for i, k := range keys {
		if i == n {
			fmt.Fprintf(w, "  ... and %d more\n", len(keys)-n)
			return
		}
		fmt.Fprintf(w, "  %s\n", k)
	}
}
