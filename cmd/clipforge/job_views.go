package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipforge/internal/api"
	"clipforge/internal/broadcast"
	"clipforge/internal/jobs"
)

var titleCaser = cases.Title(language.English)

// statusLabel renders a status for humans: "processing" -> "Processing".
func statusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatPercent(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64) + "%"
}

// formatTimestamp shortens an API timestamp to local "2006-01-02 15:04:05".
func formatTimestamp(value string) string {
	t, ok := api.ParseTime(value)
	if !ok {
		return value
	}
	return t.Local().Format(time.DateTime)
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func buildJobListRows(list []api.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		progress := formatPercent(job.Progress)
		if job.Live != nil {
			progress = job.Live.Message()
		}
		rows = append(rows, []string{
			job.SessionID,
			job.UserID,
			statusLabel(job.Status),
			progress,
			strconv.Itoa(len(job.Operations)),
			strconv.Itoa(job.Restarts),
			formatTimestamp(job.CreatedAt),
		})
	}
	return rows
}

func renderJobList(list []api.Job) string {
	return renderTable(
		[]string{"Session", "User", "Status", "Progress", "Ops", "Restarts", "Created"},
		buildJobListRows(list),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderJobDetail(job *api.Job) string {
	var b strings.Builder
	progress := formatPercent(job.Progress)
	if job.Live != nil {
		progress = job.Live.Message()
	}
	b.WriteString(renderFields([][2]string{
		{"Session", job.SessionID},
		{"Video", job.VideoID},
		{"User", job.UserID},
		{"Email", job.UserEmail},
		{"Status", statusLabel(job.Status)},
		{"Progress", progress},
		{"Active", yesNo(job.Active)},
		{"Restarts", strconv.Itoa(job.Restarts)},
		{"Budget", formatSeconds(job.TimeoutBudgetSeconds)},
		{"Created", formatTimestamp(job.CreatedAt)},
		{"Started", formatTimestamp(job.StartedAt)},
		{"Deadline", formatTimestamp(job.Deadline)},
		{"Last progress", formatTimestamp(job.LastProgressAt)},
		{"Completed", formatTimestamp(job.CompletedAt)},
		{"Source", job.SourcePath},
		{"Output", job.OutputLocation},
		{"Error", job.ErrorMessage},
	}))
	if len(job.Operations) == 0 {
		return b.String()
	}
	rows := make([][]string, 0, len(job.Operations))
	for _, op := range job.Operations {
		rows = append(rows, []string{op.ID, string(op.Type), statusLabel(string(op.Status)), formatPercent(op.Progress), op.Output})
	}
	b.WriteString(renderTable([]string{"Operation", "Type", "Status", "Progress", "Output"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
	return b.String()
}

// formatEvent renders one line of `jobs watch` output.
func formatEvent(evt broadcast.Event) string {
	switch evt.Kind {
	case broadcast.KindProgress:
		if evt.Snapshot != nil {
			line := evt.Snapshot.Message()
			if evt.Snapshot.OperationID != "" {
				line = evt.Snapshot.OperationID + " " + line
			}
			return fmt.Sprintf("[epoch %d] %s", evt.Epoch, line)
		}
		return fmt.Sprintf("[epoch %d] %s", evt.Epoch, formatPercent(evt.Progress))
	case broadcast.KindRestart:
		msg := "restarted"
		if evt.Message != "" {
			msg += ": " + evt.Message
		}
		return fmt.Sprintf("[epoch %d] %s", evt.Epoch, msg)
	default:
		line := fmt.Sprintf("[epoch %d] %s", evt.Epoch, statusLabel(string(evt.Status)))
		if evt.Status == jobs.StatusFailed && evt.Message != "" {
			line += ": " + evt.Message
		}
		return line
	}
}

func buildCountRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range jobs.AllStatuses() {
		if count, ok := counts[string(status)]; ok && count > 0 {
			rows = append(rows, []string{statusLabel(string(status)), strconv.Itoa(count)})
		}
	}
	return rows
}

func renderDaemonStatus(status *api.DaemonStatus) string {
	var b strings.Builder
	running := "not running"
	if status.Running {
		running = fmt.Sprintf("running (pid %d)", status.PID)
	}
	b.WriteString(renderFields([][2]string{
		{"Daemon", running},
		{"Started", formatTimestamp(status.StartedAt)},
		{"Database", status.DatabasePath},
		{"Lock", status.LockFilePath},
		{"Active jobs", strings.Join(status.ActiveJobs, ", ")},
		{"Subscribers", strconv.Itoa(status.Subscribers)},
		{"Redis mirror", yesNo(status.RedisMirror)},
	}))
	if rows := buildCountRows(status.Counts); len(rows) > 0 {
		b.WriteString(renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
	} else {
		b.WriteString("No jobs recorded\n")
	}
	if len(status.Dependencies) > 0 {
		rows := make([][]string, 0, len(status.Dependencies))
		for _, dep := range status.Dependencies {
			rows = append(rows, []string{dep.Name, dep.Command, yesNo(dep.Available), dep.Detail})
		}
		b.WriteString(renderTable([]string{"Dependency", "Command", "Available", "Detail"}, rows, nil))
	}
	if status.LastSweep != nil {
		b.WriteString(renderSweepReport(status.LastSweep))
	}
	return b.String()
}

func renderSweepReport(report *api.SweepReport) string {
	var b strings.Builder
	b.WriteString(renderFields([][2]string{
		{"Sweep", formatTimestamp(report.StartedAt)},
		{"Duration", report.Duration},
		{"Examined", strconv.Itoa(report.Examined)},
		{"Orphaned", strings.Join(report.Orphaned, ", ")},
		{"Restarted", strings.Join(report.Restarted, ", ")},
		{"Failed", strings.Join(report.Failed, ", ")},
		{"Stalled", strings.Join(report.Stalled, ", ")},
	}))
	for _, msg := range report.Errors {
		fmt.Fprintf(&b, "error: %s\n", msg)
	}
	return b.String()
}
