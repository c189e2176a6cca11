// File: internal/observability/console.go
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/xkilldash9x/mobilepilot/api/schemas"
)

var (
	accent  = lipgloss.Color("#8BC34A")
	info    = lipgloss.Color("#2196F3")
	warning = lipgloss.Color("#FFC107")
	danger  = lipgloss.Color("#e53935")
	muted   = lipgloss.Color("#6b7280")
)

// Console renders the human-facing progress of a run. It is separate from the
// logger: log lines go to stderr, the console narrates rounds on stdout.
type Console struct {
	w        io.Writer
	header   lipgloss.Style
	label    lipgloss.Style
	body     lipgloss.Style
	box      lipgloss.Style
	outcomes map[string]lipgloss.Style
}

// NewConsole creates a Console whose color profile is detected from w, so
// styles degrade to plain text when w is not a terminal.
func NewConsole(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:      w,
		header: r.NewStyle().Bold(true).Foreground(accent),
		label:  r.NewStyle().Bold(true).Foreground(info),
		body:   r.NewStyle().PaddingLeft(2),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		outcomes: map[string]lipgloss.Style{
			"STOPPED":   r.NewStyle().Bold(true).Foreground(accent),
			"EXHAUSTED": r.NewStyle().Bold(true).Foreground(warning),
			"FAILED":    r.NewStyle().Bold(true).Foreground(danger),
		},
	}
}

// Task announces the command being worked on.
func (c *Console) Task(task string) {
	fmt.Fprintln(c.w, c.box.Render(c.header.Render("Task")+"\n"+task))
}

// Round prints the four fields of one round record.
func (c *Console) Round(round int, rec schemas.RoundRecord) {
	var b strings.Builder
	b.WriteString(c.header.Render(fmt.Sprintf("Round %d", round)))
	b.WriteByte('\n')
	for _, f := range []struct{ name, value string }{
		{"Observation", rec.Observation},
		{"Thought", rec.Thought},
		{"Action", rec.Action},
		{"Summary", rec.Summary},
	} {
		b.WriteString(c.label.Render(f.name + ":"))
		b.WriteByte('\n')
		b.WriteString(c.body.Render(f.value))
		b.WriteByte('\n')
	}
	fmt.Fprint(c.w, b.String())
}

// Outcome prints the terminal state of the run and where the transcript went.
func (c *Console) Outcome(state string, rounds int, transcriptPath string) {
	style, ok := c.outcomes[state]
	if !ok {
		style = c.label
	}
	line := fmt.Sprintf("%s after %d round(s)", style.Render(state), rounds)
	if transcriptPath != "" {
		line += "\n" + "transcript: " + transcriptPath
	}
	fmt.Fprintln(c.w, c.box.Render(line))
}
