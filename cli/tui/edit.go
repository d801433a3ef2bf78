package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/overdub/progress"
	"github.com/justapithecus/overdub/types"
)

// ExpiryNote is shown under a successful result.
const ExpiryNote = "Download links expire after 20 minutes."

// Header identifies the session shown by the edit view.
type Header struct {
	VideoID  string
	FileName string
}

// Outcome is the content of the final panel.
type Outcome struct {
	Status   types.OutcomeStatus
	ResultID string
	// Message is the user-facing summary.
	Message string
	// Detail is the underlying error text for fatal outcomes.
	Detail string
}

// StageMsg advances the edit view to a new stage.
type StageMsg types.Stage

// DoneMsg ends the edit view with an outcome.
type DoneMsg Outcome

// EditModel is a Bubble Tea model showing the progress of one session.
type EditModel struct {
	header     Header
	spinner    spinner.Model
	stage      types.Stage
	outcome    *Outcome
	cancel     func()
	cancelling bool
}

// NewEditModel creates the edit view. cancel is called once when the user
// quits before the session ended; the view then waits for the outcome.
func NewEditModel(header Header, cancel func()) EditModel {
	return EditModel{
		header:  header,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(SpinnerStyle)),
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m EditModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m EditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StageMsg:
		m.stage = types.Stage(msg)
		return m, nil

	case DoneMsg:
		out := Outcome(msg)
		m.outcome = &out
		return m, tea.Quit

	case spinner.TickMsg:
		if m.outcome != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) && m.outcome == nil && !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	}

	return m, nil
}

// Outcome returns the final outcome, or nil while the session runs.
func (m EditModel) Outcome() *Outcome {
	return m.outcome
}

// View implements tea.Model.
func (m EditModel) View() string {
	if m.outcome != nil {
		return renderOutcome(m.header, *m.outcome) + "\n"
	}

	label := "Connecting..."
	if m.stage != "" {
		label = m.stage.Label()
	}
	if m.cancelling {
		label = "Cancelling..."
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("overdub"))
	b.WriteString("\n")
	b.WriteString(headerRows(m.header))
	b.WriteString("\n")
	b.WriteString(m.spinner.View() + " " + ValueStyle.Render(label))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to cancel"))
	return b.String()
}

func headerRows(h Header) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Video:"), ValueStyle.Render(h.VideoID))
	if h.FileName != "" {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("File:"), ValueStyle.Render(h.FileName))
	}
	return b.String()
}

func renderOutcome(h Header, out Outcome) string {
	style := OutcomeStyle(out.Status)

	var b strings.Builder
	switch out.Status {
	case types.OutcomeSuccess:
		b.WriteString(style.Bold(true).Render("Edit complete"))
	case types.OutcomeError:
		b.WriteString(style.Bold(true).Render("Video edit failed"))
	default:
		b.WriteString(style.Bold(true).Render("Edit not possible"))
	}
	b.WriteString("\n\n")
	b.WriteString(headerRows(h))

	if out.ResultID != "" {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Result:"), ValueStyle.Render(out.ResultID))
	}
	if out.Message != "" {
		b.WriteString("\n" + style.Render(out.Message) + "\n")
	}
	if out.Detail != "" {
		b.WriteString(HelpStyle.Render(out.Detail) + "\n")
	}
	if out.Status == types.OutcomeSuccess {
		b.WriteString(HelpStyle.Render(ExpiryNote))
	}

	return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RunEdit shows the edit view while work runs. work receives a reporter that
// feeds stages into the view and returns the outcome for the final panel.
// RunEdit returns once work has returned and the view has exited.
func RunEdit(header Header, cancel func(), work func(progress.Reporter) Outcome, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(NewEditModel(header, cancel), opts...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		out := work(progress.ReporterFunc(func(stage types.Stage) {
			p.Send(StageMsg(stage))
		}))
		p.Send(DoneMsg(out))
	}()

	_, err := p.Run()
	if err != nil && cancel != nil {
		cancel()
	}
	<-done
	return err
}
