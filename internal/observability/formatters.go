// Package observability provides structured logging setup and formatted
// terminal output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jonathan/idea-forge/internal/archive"
	"github.com/jonathan/idea-forge/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// maxErrorWidth bounds error messages in summary tables
	maxErrorWidth = 60
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, Truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// PrintProgress outputs a one-line progress update.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(iteration int, message string) {
	if iteration > 0 {
		fmt.Fprintf(p.out, "  [iter %d] %s\n", iteration, message)
		return
	}
	fmt.Fprintf(p.out, "  %s\n", message)
}

// PrintFeedback outputs a summary of one reviewer verdict.
func (p *Printer) PrintFeedback(iteration int, fb *types.Feedback) {
	if fb == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Recommendation: %s\n", fb.Recommendation))
	if fb.Summary != "" {
		sb.WriteString(fmt.Sprintf("Summary:        %s\n", fb.Summary))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Critical issues:   %d\n", len(fb.CriticalIssues)))
	sb.WriteString(fmt.Sprintf("Improvements:      %d\n", len(fb.Improvements)))
	sb.WriteString(fmt.Sprintf("Minor suggestions: %d\n", len(fb.MinorSuggestions)))
	sb.WriteString(fmt.Sprintf("Strengths:         %d", len(fb.Strengths)))

	p.printBox(fmt.Sprintf("REVIEWER FEEDBACK (iteration %d)", iteration), sb.String())
}

// PrintFactCheck outputs the fact-check verdict and its first issues.
func (p *Printer) PrintFactCheck(iteration int, fc *types.FactCheck) {
	if fc == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Recommendation: %s\n", fc.Recommendation))
	sb.WriteString(fmt.Sprintf("Claims: %d total, %d verified, %d unverified, %d false\n",
		fc.Statistics.TotalClaims, fc.Statistics.VerifiedClaims,
		fc.Statistics.UnverifiedClaims, fc.Statistics.FalseClaims))

	if len(fc.Issues) > 0 {
		sb.WriteString("\nIssues:\n")
		count := min(len(fc.Issues), maxItemsToShow)
		for i := 0; i < count; i++ {
			issue := fc.Issues[i]
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", issue.Severity, issue.Claim))
		}
		if len(fc.Issues) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(fc.Issues)-maxItemsToShow))
		}
	}

	p.printBox(fmt.Sprintf("FACT CHECK (iteration %d)", iteration), strings.TrimSuffix(sb.String(), "\n"))
}

// RunReport is the printable outcome of a single run.
type RunReport struct {
	Slug          string
	Status        types.Status
	Success       bool
	Iterations    int
	FinalAnalysis string
	ArchivedTo    string
	Error         string
	Duration      time.Duration
	CostUSD       float64
}

// PrintRunReport outputs the outcome of a run.
func (p *Printer) PrintRunReport(r RunReport) {
	title := "✅ RUN " + strings.ToUpper(string(r.Status))
	if !r.Success {
		title = "❌ RUN " + strings.ToUpper(string(r.Status))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Idea:       %s\n", r.Slug))
	sb.WriteString(fmt.Sprintf("Iterations: %d\n", r.Iterations))
	sb.WriteString(fmt.Sprintf("Duration:   %s\n", r.Duration.Round(time.Second)))
	if r.CostUSD > 0 {
		sb.WriteString(fmt.Sprintf("Cost:       $%.4f\n", r.CostUSD))
	}
	if r.FinalAnalysis != "" {
		sb.WriteString(fmt.Sprintf("Analysis:   %s\n", r.FinalAnalysis))
	}
	if r.ArchivedTo != "" {
		sb.WriteString(fmt.Sprintf("Archived:   %s\n", r.ArchivedTo))
	}
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("Error:      %s\n", r.Error))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// BatchRow is one idea's line in the batch summary.
type BatchRow struct {
	Title      string
	Status     types.Status
	Success    bool
	Iterations int
	Duration   time.Duration
	Error      string
}

// PrintBatchSummary outputs a table of batch results followed by totals.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintBatchSummary(rows []BatchRow, elapsed time.Duration) {
	succeeded := 0
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		status := failStyle.Render(string(r.Status))
		if r.Success {
			succeeded++
			status = successStyle.Render(string(r.Status))
		}
		data = append(data, []string{
			Truncate(r.Title, 32),
			status,
			fmt.Sprintf("%d", r.Iterations),
			r.Duration.Round(time.Second).String(),
			Truncate(strings.Join(strings.Fields(r.Error), " "), maxErrorWidth),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("IDEA", "STATUS", "ITER", "DURATION", "ERROR").
		Rows(data...).
		StyleFunc(headerOrCell)

	fmt.Fprintln(p.out, t.Render())
	fmt.Fprintf(p.out, "%d succeeded, %d failed in %s\n", succeeded, len(rows)-succeeded, elapsed.Round(time.Second))
}

// PrintArchives outputs the archive entries of a working directory.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintArchives(slug string, entries []archive.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(p.out, "No archives for %s\n", slug)
		return
	}

	data := make([][]string, 0, len(entries))
	for _, e := range entries {
		data = append(data, []string{
			e.Name,
			string(e.RunType),
			fmt.Sprintf("%03d", e.RunNumber),
			e.ArchivedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", len(e.Files)),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("ARCHIVE", "TYPE", "RUN", "ARCHIVED AT", "FILES").
		Rows(data...).
		StyleFunc(headerOrCell)

	fmt.Fprintf(p.out, "%s\n", slug)
	fmt.Fprintln(p.out, t.Render())
}

func headerOrCell(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}
