package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"storyloop/internal/backlog"
	"storyloop/internal/lifecycle"
	"storyloop/internal/router"
	"storyloop/internal/runstate"
	"storyloop/internal/status"
	"storyloop/internal/story"
	"storyloop/internal/transition"
)

// DefaultTruncateLength is used when no positive length is configured.
const DefaultTruncateLength = 60

// Printer writes styled output to a writer.
type Printer struct {
	out      io.Writer
	truncate int
}

// NewPrinter creates a [Printer] writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a [Printer] writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{out: w, truncate: DefaultTruncateLength}
}

// SetTruncateLength sets the width limit for free-text columns.
func (p *Printer) SetTruncateLength(n int) {
	if n > 0 {
		p.truncate = n
	}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Success prints a green check line.
func (p *Printer) Success(format string, args ...any) {
	p.printf("%s %s\n", passStyle.Render(iconPass), fmt.Sprintf(format, args...))
}

// Warn prints a yellow warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.printf("%s %s\n", warnStyle.Render(iconWarn), fmt.Sprintf(format, args...))
}

// Error prints a red cross line.
func (p *Printer) Error(format string, args ...any) {
	p.printf("%s %s\n", failStyle.Render(iconFail), fmt.Sprintf(format, args...))
}

// Info prints a neutral line.
func (p *Printer) Info(format string, args ...any) {
	p.printf("%s %s\n", accentStyle.Render(iconInfo), fmt.Sprintf(format, args...))
}

// Backlog prints every story as a table ordered by priority then id.
func (p *Printer) Backlog(b story.Backlog, now time.Time) {
	stories := b.Sorted()
	if len(stories) == 0 {
		p.printf("%s\n", mutedStyle.Render("No stories."))
		return
	}

	rows := [][]string{{"ID", "STATUS", "ACTIVITY", "PRI", "PR", "NEXT CHECK", "NOTE"}}
	for _, s := range stories {
		rows = append(rows, []string{
			s.ID,
			string(s.Status),
			activityLabel(s),
			fmt.Sprintf("%d", s.Priority),
			prLabel(s.PRNumber),
			nextCheckLabel(s, now),
			truncate(note(s), p.truncate),
		})
	}

	widths := columnWidths(rows)
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			padded := fmt.Sprintf("%-*s", widths[j], cell)
			switch {
			case i == 0:
				cells[j] = headerStyle.Render(padded)
			case j == 1:
				cells[j] = statusStyle(status.Status(cell)).Render(padded)
			default:
				cells[j] = padded
			}
		}
		p.printf("%s\n", strings.TrimRight(strings.Join(cells, "  "), " "))
	}

	counts := b.CountByStatus()
	var parts []string
	for _, st := range status.All {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	p.printf("\n%s\n", mutedStyle.Render(fmt.Sprintf("%d stories: %s", len(stories), strings.Join(parts, " "))))
}

// Selection prints the story chosen by a dry-run selection.
func (p *Printer) Selection(sel router.Selection, d router.Directive) {
	lines := []string{headerStyle.Render("Next: " + sel.Story.ID)}
	if sel.Story.Title != "" {
		lines = append(lines, "Title:    "+truncate(sel.Story.Title, p.truncate))
	}
	lines = append(lines,
		fmt.Sprintf("Status:   %s", sel.Story.Status),
		fmt.Sprintf("Bucket:   %s (%s)", sel.Bucket, sel.Reason),
		fmt.Sprintf("Action:   %s", d.Action),
		fmt.Sprintf("Outcomes: %s", joinKinds(d.LegalOutcomes)),
	)
	p.printf("%s\n", boxStyle.Render(strings.Join(lines, "\n")))
}

// NothingSelected prints what an empty selection means.
func (p *Printer) NothingSelected(d lifecycle.Decision) {
	switch {
	case d.Kind == lifecycle.DecisionGlobalCompletion:
		p.Success("All stories are terminal. Nothing left to do.")
	case d.Waiting:
		p.Info("Nothing due: %d stories waiting on scheduled checks.", d.Remaining)
	default:
		p.Info("Run finished: %d stories remain; the next iteration starts a new run.", d.Remaining)
	}
}

// Iteration prints one progress line for a driver iteration.
func (p *Printer) Iteration(index int, r lifecycle.IterationResult) {
	prefix := mutedStyle.Render(fmt.Sprintf("[%d]", index+1))
	switch r.Kind {
	case lifecycle.IterationTransition:
		t := r.Transition
		line := fmt.Sprintf("%s %s %s: %s", prefix, r.Selection.Story.ID, r.Action, t.Kind)
		switch {
		case t.Changed:
			line += fmt.Sprintf(" (%s -> %s)", describe(t.From, t.FromActivity), describe(t.To, t.ToActivity))
			p.Success("%s", line)
		case t.Failure.Recoverable():
			p.Warn("%s", line)
		default:
			p.Info("%s", line)
		}
		if t.Escalated {
			p.Warn("%s %s escalated: %s", prefix, t.StoryID, story.EscalationBlocked)
		}
		for _, id := range t.FollowUps {
			p.Info("%s created follow-up %s", prefix, id)
		}
	case lifecycle.IterationReset:
		p.Info("%s run reset", prefix)
	case lifecycle.IterationComplete:
		p.Success("%s all stories terminal", prefix)
	}
}

// Summary prints the driver loop outcome.
func (p *Printer) Summary(s lifecycle.Summary, elapsed time.Duration) {
	body := fmt.Sprintf("Iterations: %d\nTransitions: %d\nState changes: %d\nStopped: %s\nDuration: %s",
		s.Iterations, s.Transitions, s.Changes, stopLabel(s), elapsed.Round(time.Millisecond))
	p.printf("%s\n", boxStyle.Render(body))

	switch s.Reason {
	case lifecycle.StopComplete:
		p.Success("All stories are complete")
	case lifecycle.StopIdle:
		p.Warn("Not complete: %d stories remain but none is due yet. Run again later.", s.Remaining)
	case lifecycle.StopBudgetExhausted:
		p.Warn("Iteration budget exhausted with work remaining")
	}
}

func stopLabel(s lifecycle.Summary) string {
	switch s.Reason {
	case lifecycle.StopComplete:
		return passStyle.Render("complete")
	case lifecycle.StopIdle:
		return warnStyle.Render(fmt.Sprintf("idle, %d waiting", s.Remaining))
	case lifecycle.StopBudgetExhausted:
		return warnStyle.Render("budget exhausted")
	}
	return string(s.Reason)
}

// Preferences prints the persisted selection preferences.
func (p *Printer) Preferences(prefs runstate.Preferences) {
	ids := "all stories"
	if prefs.MergeBackoffStoryIDs != nil {
		if len(*prefs.MergeBackoffStoryIDs) == 0 {
			ids = "none"
		} else {
			ids = strings.Join(*prefs.MergeBackoffStoryIDs, ", ")
		}
	}
	prioritize := "-"
	if len(prefs.PrioritizeTask) > 0 {
		prioritize = strings.Join(prefs.PrioritizeTask, ", ")
	}

	p.printf("%s\n", headerStyle.Render("Preferences"))
	p.printf("  skip pushed tasks:   %t\n", prefs.SkipPushedTasks)
	p.printf("  merge backoff:       %t\n", prefs.MergeBackoffEnabled())
	p.printf("  backoff stories:     %s\n", ids)
	p.printf("  prioritize:          %s\n", prioritize)
}

// ImportResult prints what a backlog import did.
func (p *Printer) ImportResult(res backlog.Result) {
	p.Success("Imported %d stories", len(res.Added))
	if len(res.Skipped) > 0 {
		p.Warn("Skipped %d existing: %s", len(res.Skipped), strings.Join(res.Skipped, ", "))
	}
}

func statusStyle(s status.Status) lipgloss.Style {
	switch s {
	case status.StatusMerged:
		return passStyle
	case status.StatusPushed, status.StatusCommitted:
		return accentStyle
	case status.StatusSkipped, status.StatusInvalid:
		return mutedStyle
	default:
		return lipgloss.NewStyle()
	}
}

func describe(s status.Status, a status.Activity) string {
	if s == status.StatusPushed && a != "" && a != status.ActivityNone {
		return fmt.Sprintf("%s/%s", s, a)
	}
	return string(s)
}

func activityLabel(s *story.Story) string {
	if s.Status != status.StatusPushed {
		return "-"
	}
	return string(s.Activity())
}

func prLabel(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *n)
}

func nextCheckLabel(s *story.Story, now time.Time) string {
	switch {
	case s.Status != status.StatusMerged:
		return "-"
	case s.MergedCheckFinalState:
		return "final"
	case s.NextMergedCheck == nil:
		return "due"
	case !s.NextMergedCheck.After(now):
		return "due"
	default:
		return s.NextMergedCheck.UTC().Format("2006-01-02 15:04")
	}
}

func note(s *story.Story) string {
	switch {
	case s.SkipReason != "":
		return s.SkipReason
	case s.Escalation != "":
		return s.Escalation
	default:
		return s.Title
	}
}

func joinKinds(kinds []transition.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

func columnWidths(rows [][]string) []int {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for j, cell := range row {
			if w := lipgloss.Width(cell); w > widths[j] {
				widths[j] = w
			}
		}
	}
	return widths
}

func truncate(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
