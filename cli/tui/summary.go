package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/overdub/journal"
)

// SummaryModel is a Bubble Tea model for the session history summary.
type SummaryModel struct {
	summary  journal.Summary
	recent   []journal.SessionRecord
	width    int
	quitting bool
}

// NewSummaryModel creates a summary view over recent sessions.
func NewSummaryModel(summary journal.Summary, recent []journal.SessionRecord) SummaryModel {
	return SummaryModel{summary: summary, recent: recent}
}

// Init implements tea.Model.
func (m SummaryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m SummaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m SummaryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Edit Sessions"))
	b.WriteString("\n\n")

	s := m.summary
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Total", s.Total, highlightColor),
		statBox("Succeeded", s.Succeeded, successColor),
		statBox("Locate Failed", s.LocateFailed, warningColor),
		statBox("Download Failed", s.DownloadFailed, warningColor),
		statBox("Errors", s.Errors, errorColor),
	))
	b.WriteString("\n")

	if len(m.recent) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Recent"))
		b.WriteString("\n")
		for _, rec := range m.recent {
			fmt.Fprintf(&b, "%s  %s  %s\n",
				LabelStyle.Render(rec.FinishedAt.Local().Format("01-02 15:04")),
				ValueStyle.Render(rec.VideoID),
				OutcomeStyle(rec.Outcome).Render(string(rec.Outcome)))
		}
	}

	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

func statBox(label string, value int, color lipgloss.Color) string {
	content := StatLabelStyle.Render(label) + "\n" +
		StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	return StatBoxStyle.BorderForeground(color).Render(content)
}

// RunSummary shows the summary view until the user quits.
func RunSummary(summary journal.Summary, recent []journal.SessionRecord, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewSummaryModel(summary, recent), opts...).Run()
	return err
}
