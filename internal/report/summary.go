package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"courseopt/internal/transcode"
)

// Batch collects the reports of one invocation.
type Batch []*Course

// Failed returns how many courses failed.
func (b Batch) Failed() int {
	n := 0
	for _, c := range b {
		if c.Failed() {
			n++
		}
	}
	return n
}

// Summary renders one row per course plus a totals footer.
func (b Batch) Summary() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Course", "Status", "Removed", "Images", "Failed", "Warnings", "Size", "Time"})

	var in, out, removed int64
	for _, c := range b {
		counts := c.ImageCounts()
		status := string(c.Status)
		if c.Failed() {
			status = fmt.Sprintf("%s (%s)", c.Status, c.FailureKind)
		}
		tw.AppendRow(table.Row{
			c.CourseID,
			status,
			fmt.Sprintf("%d / %s", len(c.Removed), humanize.Bytes(uint64(max(c.BytesRemoved, 0)))),
			strconv.Itoa(counts[transcode.StatusTranscoded]),
			strconv.Itoa(counts[transcode.StatusFailed]),
			strconv.Itoa(len(c.Warnings)),
			sizeChange(c.BytesIn, c.BytesOut),
			c.Duration().Round(time.Millisecond).String(),
		})
		in += c.BytesIn
		out += c.BytesOut
		removed += c.BytesRemoved
	}
	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d courses", len(b)),
		fmt.Sprintf("%d failed", b.Failed()),
		humanize.Bytes(uint64(max(removed, 0))),
		"", "", "",
		sizeChange(in, out),
		"",
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	return tw.Render()
}

func sizeChange(in, out int64) string {
	if in <= 0 || out <= 0 {
		return "-"
	}
	pct := 100 * float64(out-in) / float64(in)
	return fmt.Sprintf("%s → %s (%+.0f%%)", humanize.Bytes(uint64(in)), humanize.Bytes(uint64(out)), pct)
}
