package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/storacha/queuectl/pkg/history"
	"github.com/storacha/queuectl/pkg/registry"
	"github.com/storacha/queuectl/pkg/store"
)

// TableFormatter formats output as a table.
type TableFormatter struct {
	writer io.Writer
}

func (f *TableFormatter) Format(data any) error {
	switch v := data.(type) {
	case []store.Job:
		return f.formatJobs(v)
	case StatusReport:
		return f.formatStatus(v)
	case []registry.Entry:
		return f.formatWorkers(v)
	case []history.Record:
		return f.formatHistory(v)
	case []ConfigEntry:
		return f.formatConfig(v)
	default:
		return fmt.Errorf("table format not supported for type %T", data)
	}
}

func (f *TableFormatter) formatJobs(jobs []store.Job) error {
	if len(jobs) == 0 {
		return f.renderEmpty("no jobs found")
	}

	rows := make([]table.Row, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, table.Row{
			job.ID,
			oneLine(job.Command),
			string(job.State),
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxRetries),
			intCell(job.ExitCode),
			job.RunAt.Format(time.DateTime),
			job.EnqueuedAt.Format(time.DateTime),
			textCell(job.LastError),
		})
	}

	columns := []table.Column{
		{Title: "ID", Width: 20},
		{Title: "COMMAND", Width: 28},
		{Title: "STATE", Width: 10},
		{Title: "ATTEMPTS", Width: 8},
		{Title: "EXIT", Width: 4},
		{Title: "RUN AT", Width: 19},
		{Title: "ENQUEUED AT", Width: 19},
		{Title: "LAST ERROR", Width: 36},
	}
	return f.renderTable(columns, rows)
}

func (f *TableFormatter) formatStatus(report StatusReport) error {
	columns := []table.Column{
		{Title: "METRIC", Width: 16},
		{Title: "COUNT", Width: 8},
	}
	rows := []table.Row{
		{"pending", strconv.Itoa(report.Pending)},
		{"processing", strconv.Itoa(report.Processing)},
		{"completed", strconv.Itoa(report.Completed)},
		{"dead", strconv.Itoa(report.Dead)},
		{"active workers", strconv.Itoa(report.ActiveWorkers)},
	}
	return f.renderTable(columns, rows)
}

func (f *TableFormatter) formatWorkers(entries []registry.Entry) error {
	if len(entries) == 0 {
		return f.renderEmpty("no workers running")
	}

	rows := make([]table.Row, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, table.Row{
			strconv.Itoa(entry.PID),
			entry.WorkerID,
			entry.Hostname,
			entry.StartedAt.Format(time.DateTime),
		})
	}

	columns := []table.Column{
		{Title: "PID", Width: 8},
		{Title: "WORKER ID", Width: 36},
		{Title: "HOST", Width: 16},
		{Title: "STARTED AT", Width: 19},
	}
	return f.renderTable(columns, rows)
}

func (f *TableFormatter) formatHistory(records []history.Record) error {
	if len(records) == 0 {
		return f.renderEmpty("no attempts recorded")
	}

	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, table.Row{
			strconv.Itoa(rec.Attempt),
			string(rec.Status),
			strconv.Itoa(rec.ExitCode),
			rec.WorkerID,
			rec.StartedAt.Format(time.DateTime),
			rec.FinishedAt.Format(time.DateTime),
			rec.FinishedAt.Sub(rec.StartedAt).String(),
		})
	}

	columns := []table.Column{
		{Title: "ATTEMPT", Width: 7},
		{Title: "STATUS", Width: 10},
		{Title: "EXIT", Width: 4},
		{Title: "WORKER", Width: 36},
		{Title: "STARTED", Width: 19},
		{Title: "FINISHED", Width: 19},
		{Title: "DURATION", Width: 12},
	}
	return f.renderTable(columns, rows)
}

func (f *TableFormatter) formatConfig(entries []ConfigEntry) error {
	rows := make([]table.Row, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, table.Row{entry.Key, entry.Value})
	}

	columns := []table.Column{
		{Title: "KEY", Width: 20},
		{Title: "VALUE", Width: 16},
	}
	return f.renderTable(columns, rows)
}

func (f *TableFormatter) renderTable(columns []table.Column, rows []table.Row) error {
	width := 0
	for _, col := range columns {
		width += col.Width + 2
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)),
		table.WithWidth(width),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	// Static output, no cursor row.
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)

	_, err := fmt.Fprintln(f.writer, t.View())
	return err
}

func (f *TableFormatter) renderEmpty(msg string) error {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)
	_, err := fmt.Fprintln(f.writer, style.Render(msg))
	return err
}

// oneLine collapses whitespace so multi-line values fit a table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textCell(s *string) string {
	if s == nil {
		return ""
	}
	return oneLine(*s)
}

func intCell(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
