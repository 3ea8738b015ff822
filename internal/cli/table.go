package cli

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/fpang/raster-cog-converter/internal/status"
	"github.com/fpang/raster-cog-converter/internal/tracking"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

// JobsTable renders one row per tracked job. Durations of running jobs are
// measured to now.
func JobsTable(w io.Writer, records []tracking.JobRecord, now time.Time) {
	table := newTable(w, []string{"Job name", "Job ID", "Files", "Status", "Duration", "Reason"})
	for _, r := range records {
		dur := "-"
		if r.StartedAt != nil {
			dur = FormatDurationShort(r.Duration(now))
		}
		table.Append([]string{r.JobName, r.JobID, strconv.Itoa(r.FileCount), r.Status, dur, r.StatusReason})
	}
	table.Render()
}

// CountsTable renders per-status job and file totals with a total footer.
func CountsTable(w io.Writer, counts []status.StatusCount) {
	table := newTable(w, []string{"Status", "Jobs", "Files"})
	var jobs, files int
	for _, c := range counts {
		table.Append([]string{c.Status, strconv.Itoa(c.Jobs), strconv.Itoa(c.Files)})
		jobs += c.Jobs
		files += c.Files
	}
	table.SetFooter([]string{"Total", strconv.Itoa(jobs), strconv.Itoa(files)})
	table.Render()
}
