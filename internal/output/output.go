// Package output provides consistent CLI output formatting with colors and progress indicators.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/store"
)

// Color palette.
const (
	ColorAccent = "154"
	ColorGray   = "245"
	ColorRed    = "196"
	ColorYellow = "220"
)

// Styles holds the text styles of a Writer.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	renderer *lipgloss.Renderer
	styles   Styles
	tty      bool
}

// New creates a Writer. Colors follow the color profile of out, so pipes
// and NO_COLOR get plain text.
func New(out io.Writer) *Writer {
	r := lipgloss.NewRenderer(out)
	return &Writer{
		out:      out,
		renderer: r,
		tty:      IsTTY(out),
		styles: Styles{
			Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
			Success: r.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
			Warning: r.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
			Error:   r.NewStyle().Foreground(lipgloss.Color(ColorRed)),
			Dim:     r.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		},
	}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.styles.Success.Render(msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Progress prints a progress bar with message. Terminals get in-place
// updates; other outputs only the final line.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	if !w.tty && current < total {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Tasks prints tasks as an aligned table.
func (w *Writer) Tasks(tasks []*store.Task) {
	if len(tasks) == 0 {
		w.Status("", w.styles.Dim.Render("no tasks"))
		return
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10), string(t.Priority), string(t.Status), orDash(t.AssigneeName), t.Title,
		})
	}
	w.table([]string{"ID", "PRIORITY", "STATUS", "ASSIGNEE", "TITLE"}, rows)
}

// SearchResults prints search hits nearest first.
func (w *Writer) SearchResults(query string, results []search.Result) {
	if len(results) == 0 {
		w.Statusf("🔍", "No tasks found for %q", query)
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			strconv.FormatInt(r.Task.ID, 10), fmt.Sprintf("%.3f", r.Distance), string(r.Task.Status), r.Task.Title,
		})
	}
	w.table([]string{"ID", "DISTANCE", "STATUS", "TITLE"}, rows)
}

// Task prints one task as labelled fields.
func (w *Writer) Task(t *store.Task) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(fmt.Sprintf("#%d %s", t.ID, t.Title)))
	fields := [][2]string{
		{"Status", string(t.Status)},
		{"Priority", string(t.Priority)},
		{"Assignee", orDash(t.AssigneeName)},
		{"Start", formatDate(t.StartDate)},
		{"End", formatDate(t.EndDate)},
		{"Jira", orDash(t.JiraLink)},
		{"Pull requests", orDash(t.PullRequestLinks)},
		{"Updated", t.UpdatedAt.Local().Format(time.DateTime)},
	}
	label := w.styles.Dim.Width(15)
	for _, f := range fields {
		_, _ = fmt.Fprintf(w.out, "  %s%s\n", label.Render(f[0]), f[1])
	}
	if t.Description != "" {
		_, _ = fmt.Fprintf(w.out, "\n  %s\n", t.Description)
	}
}

func (w *Writer) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	render := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i == len(cells)-1 {
				parts[i] = style.Render(c)
				continue
			}
			parts[i] = style.Width(widths[i] + 2).Render(c)
		}
		return strings.Join(parts, "")
	}

	_, _ = fmt.Fprintln(w.out, render(header, w.styles.Header))
	plain := w.renderer.NewStyle()
	for _, row := range rows {
		_, _ = fmt.Fprintln(w.out, render(row, plain))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
