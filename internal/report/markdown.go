// Package report renders card analyses for terminal output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/domain"
)

// dateLayout formats report timestamps.
const dateLayout = "2006-01-02 15:04 MST"

// Markdown renders one analysis as a markdown document: timing, journey per tracked list, and column stays.
func Markdown(a domain.CardAnalysis, tracked []domain.TrackedList, now time.Time) string {
	names := listNames(tracked)
	var b strings.Builder

	fmt.Fprintf(&b, "# Card %s\n\n", a.CardID)
	fmt.Fprintf(&b, "Analyzed %s from %d actions", a.AnalyzedAt.UTC().Format(dateLayout), a.ActionCount)
	if a.SkippedActions > 0 {
		fmt.Fprintf(&b, " (%d skipped)", a.SkippedActions)
	}
	b.WriteString(".\n\n")

	b.WriteString("## Resolution timing\n\n")
	b.WriteString("| Metric | Minutes | Elapsed |\n|---|---:|---|\n")
	writeTimingRow(&b, "Resolution", a.Timing.ResolutionTime)
	writeTimingRow(&b, "TS resolution", a.Timing.TSResolutionTime)
	writeTimingRow(&b, "First action", a.Timing.FirstActionTime)
	b.WriteString("\n")

	b.WriteString("## Journey\n\n")
	if a.Journey.CardCreated != nil {
		fmt.Fprintf(&b, "Created %s.\n\n", a.Journey.CardCreated.UTC().Format(dateLayout))
	} else {
		b.WriteString("Creation time unknown.\n\n")
	}
	for _, key := range a.Journey.Keys {
		fmt.Fprintf(&b, "### %s\n\n", headingFor(key, names))
		moves := a.Journey.MovesFor(key)
		if len(moves) == 0 {
			b.WriteString("No moves.\n\n")
			continue
		}
		b.WriteString("| # | Date | From | Member | Days |\n|---:|---|---|---|---:|\n")
		for i, move := range moves {
			days, open, _ := a.Journey.DaysInColumn(key, i, now)
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				i+1,
				move.Date.UTC().Format(dateLayout),
				escapeCell(move.From),
				escapeCell(memberName(move.Member)),
				daysCell(days, open),
			)
		}
		b.WriteString("\n")
	}

	stays := a.Journey.Stays(now)
	if len(stays) > 0 {
		b.WriteString("## Column stays\n\n")
		for _, stay := range stays {
			fmt.Fprintf(&b, "- %s: %s\n", escapeCell(stay.Entry.To), daysCell(stay.Days, stay.Open))
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// FormatMinutes renders one optional minute metric as a compact duration.
func FormatMinutes(minutes *int64) string {
	if minutes == nil {
		return "n/a"
	}
	m := *minutes
	days := m / (24 * 60)
	hours := (m % (24 * 60)) / 60
	mins := m % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

func writeTimingRow(b *strings.Builder, label string, minutes *int64) {
	raw := "-"
	if minutes != nil {
		raw = fmt.Sprintf("%d", *minutes)
	}
	fmt.Fprintf(b, "| %s | %s | %s |\n", label, raw, FormatMinutes(minutes))
}

func listNames(tracked []domain.TrackedList) map[string]string {
	out := make(map[string]string, len(tracked))
	for _, list := range tracked {
		out[list.Key] = list.Name
	}
	return out
}

func headingFor(key string, names map[string]string) string {
	if name := strings.TrimSpace(names[key]); name != "" {
		return fmt.Sprintf("%s (%s)", name, key)
	}
	return key
}

func memberName(m *domain.MoveMember) string {
	if m == nil || strings.TrimSpace(m.Name) == "" {
		return "-"
	}
	return m.Name
}

func daysCell(days int, open bool) string {
	if open {
		return fmt.Sprintf("%d (open)", days)
	}
	return fmt.Sprintf("%d", days)
}

// escapeCell keeps list and member names from breaking table rows.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
