package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"jobtrack/api/internal/dashboard"
	"jobtrack/api/internal/jobs"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8f98"))
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

func formatDate(date *jobs.Date) string {
	if date == nil {
		return "none"
	}
	return date.String()
}

func orBlank(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// table renders rows under bold headers with columns sized to the widest
// cell.
func table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	line := func(cells []string, style lipgloss.Style) {
		for i, cell := range cells {
			sb.WriteString(style.Inherit(cellStyle).Width(widths[i] + 2).Render(cell))
		}
		sb.WriteString("\n")
	}
	line(headers, titleStyle)
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
	return sb.String()
}

func renderJobTable(list []jobs.Job) string {
	if len(list) == 0 {
		return mutedStyle.Render("no jobs") + "\n"
	}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			fmt.Sprint(job.ID),
			job.JobNo,
			job.Title,
			job.Status.Label(),
			formatDate(job.InHandsDate),
			orBlank(job.Owner),
		})
	}
	return table([]string{"ID", "JOB #", "TITLE", "STATUS", "IN HANDS", "OWNER"}, rows)
}

func renderWarning(sb *strings.Builder, warning string) {
	if warning != "" {
		sb.WriteString(warningStyle.Render("! "+warning) + "\n\n")
	}
}

func renderBoard(board dashboard.Board, warning string) string {
	var sb strings.Builder
	renderWarning(&sb, warning)
	for _, column := range board.Columns {
		sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d)", column.Label, len(column.Jobs))) + "\n")
		if len(column.Jobs) == 0 {
			sb.WriteString(mutedStyle.Render("  empty") + "\n")
		}
		for _, job := range column.Jobs {
			fmt.Fprintf(&sb, "  #%d %s  %s", job.ID, job.JobNo, job.Title)
			if job.InHandsDate != nil {
				sb.WriteString(mutedStyle.Render("  in hands " + job.InHandsDate.String()))
			}
			if job.Owner != nil {
				sb.WriteString(mutedStyle.Render("  " + *job.Owner))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderCalendar(cal dashboard.CalendarMonth, warning string) string {
	var sb strings.Builder
	renderWarning(&sb, warning)
	sb.WriteString(titleStyle.Render(cal.Month) + "\n")
	if len(cal.Days) == 0 {
		sb.WriteString(mutedStyle.Render("  nothing due") + "\n")
	}
	for _, day := range cal.Days {
		sb.WriteString(day.Date.Time().Format("Mon Jan 2") + "\n")
		for _, job := range day.Jobs {
			fmt.Fprintf(&sb, "  %s  %s [%s]\n", job.JobNo, job.Title, job.Status.Label())
		}
	}
	if len(cal.Unscheduled) > 0 {
		sb.WriteString("\n" + titleStyle.Render(fmt.Sprintf("Unscheduled (%d)", len(cal.Unscheduled))) + "\n")
		for _, job := range cal.Unscheduled {
			fmt.Fprintf(&sb, "  %s  %s\n", job.JobNo, job.Title)
		}
	}
	return sb.String()
}

func renderJobDetail(job jobs.Job, activities []jobs.Activity) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(job.JobNo+"  "+job.Title) + "\n")
	fmt.Fprintf(&sb, "status:    %s\n", job.Status.Label())
	fmt.Fprintf(&sb, "in hands:  %s\n", formatDate(job.InHandsDate))
	if job.Owner != nil {
		fmt.Fprintf(&sb, "owner:     %s\n", *job.Owner)
	}
	if job.Priority != nil {
		fmt.Fprintf(&sb, "priority:  %s\n", *job.Priority)
	}
	if job.EstSONo != nil {
		fmt.Fprintf(&sb, "est/so:    %s\n", *job.EstSONo)
	}
	sb.WriteString("\n" + titleStyle.Render(fmt.Sprintf("Activity (%d)", len(activities))) + "\n")
	for _, activity := range activities {
		fmt.Fprintf(&sb, "  %s  %s  %s\n",
			activity.CreatedAt.Format("2006-01-02 15:04"),
			activity.Source,
			orBlank(activity.Snippet),
		)
	}
	return sb.String()
}
