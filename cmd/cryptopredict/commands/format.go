package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/persona"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	singleLine = "───────────────────────────────────────────────────────────"
	doubleLine = "═══════════════════════════════════════════════════════════"
	timeLayout = "2006-01-02 15:04 MST"
)

// PrintHeader prints a titled block with key-value rows
func PrintHeader(w io.Writer, title string, rows [][2]string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
	for _, kv := range rows {
		fmt.Fprintf(w, "  %-12s: %s\n", kv[0], kv[1])
	}
	fmt.Fprintln(w, singleLine)
}

// PrintSeparator prints a visual separator
func PrintSeparator(w io.Writer) {
	fmt.Fprintln(w, singleLine)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(w io.Writer, columns []string, widths []int) {
	PrintTableRow(w, columns, widths)

	// Separator line
	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row. Values longer than their column are cut.
func PrintTableRow(w io.Writer, values []string, widths []int) {
	cells := make([]string, len(values))
	for i, val := range values {
		if r := []rune(val); len(r) > widths[i] {
			val = string(r[:widths[i]-1]) + "…"
		}
		cells[i] = fmt.Sprintf("%-*s", widths[i], val)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(w io.Writer, key string, value string, keyWidth int) {
	fmt.Fprintf(w, "   %-*s : %s\n", keyWidth, key, value)
}

// PrintJSON prints v as indented JSON
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatConfidence renders a confidence as a percentage
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%5.1f%%", c*100)
}

// FormatTime renders a timestamp in UTC
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

// PrintProjection prints a projection the way its persona would see it
func PrintProjection(w io.Writer, p *persona.Projection) {
	rows := [][2]string{
		{"Run", p.RunID},
		{"Persona", string(p.Persona)},
		{"Context", fmt.Sprintf("%s (%s)", p.Context.Name, p.Context.ID)},
		{"As of", FormatTime(p.AsOf)},
		{"Confidence", FormatConfidence(p.AggregateConfidence)},
	}
	PrintHeader(w, "Analysis", rows)

	for _, l := range p.Layers {
		mark := "●"
		if l.Degraded {
			mark = "○"
		}
		fmt.Fprintf(w, "  %s %-7s %s  %s\n", mark, l.Layer, FormatConfidence(l.Confidence), l.Label)
		fmt.Fprintf(w, "      %s\n", l.Explanation)
	}

	if p.Caution != "" {
		fmt.Fprintln(w)
		PrintWarning(w, p.Caution)
	}

	if p.Delta != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Since %s (%s): %+.1f%%\n", p.Delta.PreviousRunID, FormatTime(p.Delta.PreviousAsOf), p.Delta.ConfidenceChange*100)
		for _, c := range p.Delta.Changes {
			if c.Changed {
				fmt.Fprintf(w, "    %-7s %s → %s\n", c.Layer, c.From, c.To)
			}
		}
	}

	if p.Admin != nil {
		fmt.Fprintln(w)
		PrintSeparator(w)
		PrintKeyValue(w, "owner", p.Admin.Owner.String(), 12)
		PrintKeyValue(w, "scope", fmt.Sprintf("v%d %s", p.Admin.ScopeVersion, strings.Join(p.Admin.Assets, ",")), 12)
		PrintKeyValue(w, "disagreement", string(p.Admin.Disagreement), 12)
		for _, c := range p.Admin.Conflicts {
			PrintKeyValue(w, "conflict", fmt.Sprintf("%s: %s ↔ %s %s", c.Rule, c.Upstream, c.Downstream, strings.Join(c.Symbols, ",")), 12)
		}
		for _, t := range p.Admin.Timings {
			PrintKeyValue(w, "timing", fmt.Sprintf("%s %v", t.Layer, t.Duration), 12)
		}
		PrintKeyValue(w, "policy", p.Admin.PolicyHash, 12)
	}
}

// PrintRunSummaries prints run listing rows
func PrintRunSummaries(w io.Writer, runs []contracts.RunSummary) {
	widths := []int{38, 20, 8, 10, 28}
	PrintTableHeader(w, []string{"RUN", "AS OF", "CONF", "DISAGREE", "MACRO"}, widths)
	for _, r := range runs {
		PrintTableRow(w, []string{
			r.RunID,
			FormatTime(r.AsOf),
			FormatConfidence(r.AggregateConfidence),
			string(r.Disagreement),
			r.Labels[contracts.LayerMacro],
		}, widths)
	}
}
