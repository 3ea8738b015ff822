// Package jobs names conversion jobs and runs.
package jobs

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// TimestampLayout is the UTC timestamp embedded in job names.
const TimestampLayout = "20060102-150405"

// runFragmentLen is how much of a run ID a job name carries.
const runFragmentLen = 8

// Name returns the job name for chunk seq of run runID started at at, e.g.
// "cog-convert-20260314-091500-3f2a9c1e-0003". The run fragment keeps two
// runs started in the same second apart. Names sort in submission order.
func Name(prefix string, at time.Time, runID string, seq int) string {
	stamp := at.UTC().Format(TimestampLayout)
	if frag := RunFragment(runID); frag != "" {
		return fmt.Sprintf("%s-%s-%s-%04d", prefix, stamp, frag, seq)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, stamp, seq)
}

// RunFragment is the lowercase alphanumeric prefix of runID used in job
// names, at most eight characters long.
func RunFragment(runID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(runID) {
		if b.Len() == runFragmentLen {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewRunID returns a random identifier grouping the jobs of one submit run.
func NewRunID() string {
	return uuid.NewString()
}
