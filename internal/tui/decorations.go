package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	protocol "github.com/sourcegraph/go-lsp"

	"ferrousowl/internal/lsp"
)

// RenderDecorations prints every source line touched by a decoration with
// the decorated columns styled, followed by the hover texts.
func RenderDecorations(w io.Writer, source []byte, decs lsp.Decorations, styles DecorationStyles) error {
	if decs.Empty() {
		_, err := fmt.Fprintln(w, faintStyle.Render("no decorations at this position"))
		return err
	}

	lines := strings.Split(strings.ReplaceAll(string(source), "\r\n", "\n"), "\n")
	paint := paintLines(lines, decs)

	order := make([]int, 0, len(paint))
	for line := range paint {
		order = append(order, line)
	}
	sort.Ints(order)
	if len(order) == 0 {
		return nil
	}

	numWidth := len(fmt.Sprint(order[len(order)-1] + 1))
	for _, line := range order {
		gutter := faintStyle.Render(fmt.Sprintf("%*d |", numWidth, line+1))
		if _, err := fmt.Fprintf(w, "%s %s\n", gutter, renderLine([]rune(lines[line]), paint[line], styles)); err != nil {
			return err
		}
	}

	if len(decs.Hover) > 0 {
		fmt.Fprintln(w)
		for _, h := range decs.Hover {
			if _, err := fmt.Fprintf(w, "  %s  %s\n", faintStyle.Render(formatRange(h.Range)), h.Text); err != nil {
				return err
			}
		}
	}
	return nil
}

// paintLines assigns a set kind to every rune covered by a styled range and
// marks lines that only carry hover text. LSP character offsets count UTF-16
// code units.
func paintLines(lines []string, decs lsp.Decorations) map[int][]lsp.SetKind {
	paint := make(map[int][]lsp.SetKind)
	cols := func(line int) []lsp.SetKind {
		if c, ok := paint[line]; ok {
			return c
		}
		c := make([]lsp.SetKind, utf8.RuneCountInString(lines[line]))
		paint[line] = c
		return c
	}

	for _, set := range decs.Styled() {
		for _, r := range set.Ranges {
			for line := max(r.Start.Line, 0); line <= r.End.Line && line < len(lines); line++ {
				text := []rune(lines[line])
				kinds := cols(line)
				from, to := 0, len(text)
				if line == r.Start.Line {
					from = runeIndex(text, r.Start.Character)
				}
				if line == r.End.Line {
					to = runeIndex(text, r.End.Character)
				}
				for c := from; c < to; c++ {
					kinds[c] = set.Kind
				}
			}
		}
	}
	for _, h := range decs.Hover {
		if l := h.Range.Start.Line; l >= 0 && l < len(lines) {
			cols(l)
		}
	}
	return paint
}

// runeIndex maps an offset in UTF-16 code units to an index into text,
// clamped to the line.
func runeIndex(text []rune, units int) int {
	n := 0
	for i, r := range text {
		if n >= units {
			return i
		}
		if w := utf16.RuneLen(r); w > 1 {
			n += w
		} else {
			n++
		}
	}
	return len(text)
}

// renderLine groups consecutive columns with the same kind into one styled run.
func renderLine(text []rune, kinds []lsp.SetKind, styles DecorationStyles) string {
	var b strings.Builder
	start := 0
	for i := 1; i <= len(text); i++ {
		if i < len(text) && kinds[i] == kinds[start] {
			continue
		}
		chunk := string(text[start:i])
		if kinds[start] == "" {
			b.WriteString(chunk)
		} else {
			b.WriteString(styles.style(kinds[start]).Render(chunk))
		}
		start = i
	}
	return b.String()
}

func formatRange(r protocol.Range) string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line+1, r.Start.Character+1, r.End.Line+1, r.End.Character+1)
}

var severityNames = map[protocol.DiagnosticSeverity]string{
	protocol.Error:       "error",
	protocol.Warning:     "warning",
	protocol.Information: "info",
	protocol.Hint:        "hint",
}

// RenderDiagnostics lists what the server last published for the file.
func RenderDiagnostics(w io.Writer, diags []protocol.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	for _, d := range diags {
		sev, ok := severityNames[d.Severity]
		if !ok {
			sev = "note"
		}
		msg := d.Message
		if d.Source != "" {
			msg = d.Source + ": " + msg
		}
		if _, err := fmt.Fprintf(w, "  %s  %s %s\n", faintStyle.Render(formatRange(d.Range)), StatusStyle(sev).Render(sev), msg); err != nil {
			return err
		}
	}
	return nil
}

// Legend lists the styled sets that have at least one range.
func Legend(decs lsp.Decorations, styles DecorationStyles) string {
	var parts []string
	for _, set := range decs.Styled() {
		if len(set.Ranges) == 0 {
			continue
		}
		parts = append(parts, styles.style(set.Kind).Render(string(set.Kind))+fmt.Sprintf(" x%d", len(set.Ranges)))
	}
	return strings.Join(parts, "  ")
}
