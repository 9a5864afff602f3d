package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hylla/cardtrail/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	openStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Summary renders a one-screen styled summary of one analysis.
func Summary(a domain.CardAnalysis, tracked []domain.TrackedList, now time.Time) string {
	names := listNames(tracked)
	lines := []string{
		titleStyle.Render("Card " + a.CardID),
		summaryLine("Resolution", FormatMinutes(a.Timing.ResolutionTime)),
		summaryLine("TS resolution", FormatMinutes(a.Timing.TSResolutionTime)),
		summaryLine("First action", FormatMinutes(a.Timing.FirstActionTime)),
		summaryLine("Actions", actionCounts(a)),
	}

	for _, key := range a.Journey.Keys {
		label := names[key]
		if strings.TrimSpace(label) == "" {
			label = key
		}
		lines = append(lines, summaryLine(label, fmt.Sprintf("%d moves", len(a.Journey.MovesFor(key)))))
	}

	stays := a.Journey.Stays(now)
	if len(stays) > 0 {
		current := stays[len(stays)-1]
		value := fmt.Sprintf("%s for %d days", current.Entry.To, current.Days)
		if current.Open {
			lines = append(lines, labelStyle.Render("Now in")+openStyle.Render(value))
		} else {
			lines = append(lines, summaryLine("Last stay", value))
		}
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// AnalysesTable renders stored analyses as one bordered table.
func AnalysesTable(analyses []domain.CardAnalysis) string {
	rows := make([][]string, 0, len(analyses))
	for _, a := range analyses {
		rows = append(rows, []string{
			a.CardID,
			FormatMinutes(a.Timing.ResolutionTime),
			FormatMinutes(a.Timing.TSResolutionTime),
			FormatMinutes(a.Timing.FirstActionTime),
			strconv.Itoa(a.ActionCount),
			a.AnalyzedAt.UTC().Format(dateLayout),
		})
	}
	return renderTable([]string{"Card", "Resolution", "TS", "First action", "Actions", "Analyzed"}, rows)
}

// RunsTable renders one card's analysis history as one bordered table.
func RunsTable(runs []domain.AnalysisRun) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.AnalyzedAt.UTC().Format(dateLayout),
			FormatMinutes(run.Timing.ResolutionTime),
			FormatMinutes(run.Timing.TSResolutionTime),
			FormatMinutes(run.Timing.FirstActionTime),
			strconv.Itoa(run.ActionCount),
			run.ID,
		})
	}
	return renderTable([]string{"Analyzed", "Resolution", "TS", "First action", "Actions", "Run"}, rows)
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func summaryLine(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func actionCounts(a domain.CardAnalysis) string {
	if a.SkippedActions == 0 {
		return strconv.Itoa(a.ActionCount)
	}
	return fmt.Sprintf("%d (%d skipped)", a.ActionCount, a.SkippedActions)
}
