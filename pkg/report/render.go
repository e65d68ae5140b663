package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	labelStyle   = lipgloss.NewStyle().Width(11)
	failureStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// MaxRenderedFailures caps the failure lines Render prints.
const MaxRenderedFailures = 50

// Render writes a human readable summary to w.
func Render(w io.Writer, s *Summary) error {
	var b strings.Builder

	title := fmt.Sprintf("%s summary", s.Operation)
	if s.RunID != "" {
		title += " (run " + s.RunID + ")"
	}
	b.WriteString(titleStyle.Render(title) + "\n")

	row := func(label string, style lipgloss.Style, value string) {
		b.WriteString(labelStyle.Render(label) + style.Render(value) + "\n")
	}
	row("total", lipgloss.NewStyle(), fmt.Sprintf("%d", s.Total()))
	row("succeeded", okStyle, s.Ratio())
	row("skipped", warnStyle, fmt.Sprintf("%d", s.Skipped()))
	row("failed", failStyle, fmt.Sprintf("%d", s.Failed()))
	if n := s.Excluded(); n > 0 {
		row("excluded", lipgloss.NewStyle(), fmt.Sprintf("%d", n))
	}
	row("bytes", lipgloss.NewStyle(), humanize.IBytes(uint64(s.Bytes())))
	row("elapsed", lipgloss.NewStyle(), s.Duration().Round(1e6).String())

	failures := s.Failures()
	if len(failures) > 0 {
		b.WriteString(titleStyle.Render("problems") + "\n")
		for i, f := range failures {
			if i == MaxRenderedFailures {
				b.WriteString(failureStyle.Render(fmt.Sprintf("... and %d more", len(failures)-i)) + "\n")
				break
			}
			style := failStyle
			if f.Kind.Skipped() {
				style = warnStyle
			}
			b.WriteString(failureStyle.Render(style.Render(f.String())) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
