package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"podium/etc"
	"podium/feedback"
	"podium/transcript"
)

// WriteSummary prints the session's feedback as a table, with times
// relative to start when it is set, followed by the transcript.
func WriteSummary(w io.Writer, snap transcript.Snapshot, events []feedback.Event, start time.Time) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No feedback.")
	} else {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"#", "Time", "Origin", "Feedback", "Flagged"})
		table.SetBorder(false)
		table.SetCenterSeparator("|")
		table.SetColumnSeparator("|")
		table.SetRowSeparator("-")
		table.SetAutoWrapText(false)
		table.SetAutoFormatHeaders(true)

		flagged := 0
		for _, e := range events {
			mark := ""
			if e.StutteringDetected {
				mark = "yes"
				flagged++
			}
			table.Append([]string{
				fmt.Sprintf("%d", e.ID),
				when(e.Timestamp, start),
				string(e.Origin),
				e.Text,
				mark,
			})
		}
		table.SetFooter([]string{"", "", "", fmt.Sprintf("%d events", len(events)), fmt.Sprintf("%d", flagged)})
		table.Render()
	}

	if text := strings.TrimSpace(snap.Display()); text != "" {
		fmt.Fprintf(w, "\n%s\n", text)
	}
}

func when(t, start time.Time) string {
	if start.IsZero() || t.Before(start) {
		return t.Format("15:04:05")
	}
	return etc.Clock(t.Sub(start))
}
