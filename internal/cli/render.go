package cli

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#60A5FA")).
			Bold(true)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	boardBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// Render builds the full status view for a MinerState, in the teacher's
// boxed-section terminal style.
func Render(state *MinerState) string {
	var b strings.Builder

	title := "MUJINA"
	if state.Paused {
		title += " (paused)"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Summary"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  uptime:    %s\n", formatDuration(state.UptimeSecs))
	fmt.Fprintf(&b, "  hashrate:  %s\n", formatHashRate(state.HashRate))
	fmt.Fprintf(&b, "  shares:    %d accepted\n", state.SharesSubmitted)
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Boards"))
	b.WriteString("\n")
	if len(state.Boards) == 0 {
		b.WriteString(helpStyle.Render("  (none attached)"))
		b.WriteString("\n")
	}
	for _, bd := range state.Boards {
		b.WriteString(boardBoxStyle.Render(renderBoard(bd)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Sources"))
	b.WriteString("\n")
	if len(state.Sources) == 0 {
		b.WriteString(helpStyle.Render("  (none configured)"))
		b.WriteString("\n")
	}
	for _, s := range state.Sources {
		b.WriteString(renderSource(s))
		b.WriteString("\n")
	}

	return b.String()
}

func renderBoard(bd BoardSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  (%s, serial %s)\n", bd.Name, bd.Model, bd.Serial)
	fmt.Fprintf(&b, "hashrate: %s  threads: %d\n", formatHashRate(bd.HashRate), len(bd.ThreadNames))
	for _, f := range bd.Fans {
		fmt.Fprintf(&b, "fan %s: %d%% (%d rpm)\n", f.Name, f.DutyPct, f.RPM)
	}
	for _, s := range bd.Sensors {
		fmt.Fprintf(&b, "sensor %s: %.1fC\n", s.Name, s.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSource(s SourceSummary) string {
	status := okStyle.Render("connected")
	if !s.Connected {
		status = warnStyle.Render("disconnected")
	}
	return fmt.Sprintf("  %s  %s  job=%s  diff=%.0f  accepted=%d  rejected=%d",
		s.Name, status, s.CurrentJobID, s.ShareDifficulty, s.SharesAccepted, s.SharesRejected)
}

func formatDuration(secs float64) string {
	total := int64(secs)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
}

func formatHashRate(hr float64) string {
	units := []string{"H/s", "KH/s", "MH/s", "GH/s", "TH/s", "PH/s"}
	i := 0
	for hr >= 1000 && i < len(units)-1 {
		hr /= 1000
		i++
	}
	return fmt.Sprintf("%.2f %s", hr, units[i])
}

// CopyToClipboard copies the rendered view, stripped of ANSI styling, to the
// system clipboard via the --copy flag.
func CopyToClipboard(rendered string) error {
	return clipboard.WriteAll(lipgloss.NewStyle().Render(stripANSI(rendered)))
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
