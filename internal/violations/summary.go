package violations

import (
	"fmt"
	"strings"
)

const summaryTopCategories = 5

// Summary renders the loaded dataset as short plain text for the assistant's
// prompt context.
func (s *Snapshot) Summary() string {
	if s.Len() == 0 {
		return ""
	}

	var b strings.Builder
	first, last := s.periods[0], s.periods[len(s.periods)-1]
	fmt.Fprintf(&b, "Dataset: %d monthly periods from %s to %s.\n", s.Len(), first.Label, last.Label)

	b.WriteString("Overall violation mix: ")
	writeBars(&b, s.OverallPattern())
	b.WriteString(".\n")

	latest, _ := s.Pattern(last.Index)
	fmt.Fprintf(&b, "Latest period %s (%d violations): ", last.Label, last.Total)
	writeBars(&b, latest)
	b.WriteString(".\n")

	if similar, err := s.Similar(last.Index, DefaultTopK-1); err == nil && len(similar) > 0 {
		fmt.Fprintf(&b, "Periods most similar to %s: ", last.Label)
		writeMatches(&b, similar)
		b.WriteString(".\n")
	}

	if unusual, err := s.Outliers(3); err == nil && s.Len() > 1 {
		b.WriteString("Least typical periods: ")
		writeMatches(&b, unusual)
		b.WriteString(".\n")
	}

	return b.String()
}

func writeBars(b *strings.Builder, bars []Bar) {
	n := min(len(bars), summaryTopCategories)
	for i, bar := range bars[:n] {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s %.1f%%", bar.Label, bar.Percent)
	}
}

func writeMatches(b *strings.Builder, matches []Match) {
	for i, m := range matches {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s (%.1f%%)", m.Label, m.Percent)
	}
}
