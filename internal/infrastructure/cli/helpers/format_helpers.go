package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

const placeholder = "-"

// FormatDuration renders an optional duration rounded to milliseconds.
func FormatDuration(d *time.Duration) string {
	if d == nil {
		return placeholder
	}
	return d.Round(time.Millisecond).String()
}

// FormatAge renders an optional instant relative to now ("3 minutes ago").
func FormatAge(t *time.Time) string {
	if t == nil || t.IsZero() {
		return placeholder
	}
	return humanize.Time(*t)
}

// FormatBytes renders a byte count in SI units.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatPercent renders a 0..1 ratio as a percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// PrintJSON writes v as indented JSON.
func PrintJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
