package tui

import (
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/overdub/journal"
	"github.com/justapithecus/overdub/progress"
	"github.com/justapithecus/overdub/types"
)

func update(t *testing.T, m EditModel, msg tea.Msg) (EditModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	em, ok := next.(EditModel)
	if !ok {
		t.Fatalf("Update returned %T, want EditModel", next)
	}
	return em, cmd
}

func TestEditModel_StageLabels(t *testing.T) {
	m := NewEditModel(Header{VideoID: "dQw4w9WgXcQ", FileName: "clip.mp4"}, nil)

	if view := m.View(); !strings.Contains(view, "Connecting...") || !strings.Contains(view, "clip.mp4") {
		t.Errorf("initial view = %q", view)
	}

	m, _ = update(t, m, StageMsg(types.StageUpload))
	if view := m.View(); !strings.Contains(view, "Uploading...") {
		t.Errorf("upload view = %q", view)
	}

	m, _ = update(t, m, StageMsg(types.StageEdit))
	if view := m.View(); !strings.Contains(view, "Editing...") {
		t.Errorf("edit view = %q", view)
	}
}

func TestEditModel_DoneQuits(t *testing.T) {
	m := NewEditModel(Header{VideoID: "abc"}, nil)

	m, cmd := update(t, m, DoneMsg{Status: types.OutcomeSuccess, ResultID: "res-1"})
	if cmd == nil {
		t.Fatal("DoneMsg should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("DoneMsg command should produce tea.QuitMsg")
	}
	if m.Outcome() == nil || m.Outcome().ResultID != "res-1" {
		t.Errorf("Outcome = %+v", m.Outcome())
	}

	view := m.View()
	for _, want := range []string{"Edit complete", "res-1", ExpiryNote} {
		if !strings.Contains(view, want) {
			t.Errorf("outcome view missing %q: %q", want, view)
		}
	}
}

func TestEditModel_FailurePanels(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    []string
	}{
		{
			name:    "classified",
			outcome: Outcome{Status: types.OutcomeLocateFailed, Message: "could not hear the music"},
			want:    []string{"Edit not possible", "could not hear the music"},
		},
		{
			name:    "fatal",
			outcome: Outcome{Status: types.OutcomeError, Message: "video edit failed", Detail: "server error: edit_failed"},
			want:    []string{"Video edit failed", "server error: edit_failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := update(t, NewEditModel(Header{VideoID: "abc"}, nil), DoneMsg(tt.outcome))
			view := m.View()
			for _, want := range tt.want {
				if !strings.Contains(view, want) {
					t.Errorf("view missing %q: %q", want, view)
				}
			}
			if strings.Contains(view, ExpiryNote) {
				t.Error("failure panel should not show the expiry note")
			}
		})
	}
}

func TestEditModel_QuitCancelsOnce(t *testing.T) {
	calls := 0
	m := NewEditModel(Header{VideoID: "abc"}, func() { calls++ })

	quit := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
	m, cmd := update(t, m, quit)
	if cmd != nil {
		t.Error("quit while running should wait for the outcome, not exit")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})

	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
	if !strings.Contains(m.View(), "Cancelling...") {
		t.Errorf("view = %q", m.View())
	}
}

func TestEditModel_TickStopsAfterDone(t *testing.T) {
	m, _ := update(t, NewEditModel(Header{VideoID: "abc"}, nil), DoneMsg{Status: types.OutcomeError})
	_, cmd := update(t, m, m.spinner.Tick())
	if cmd != nil {
		t.Error("spinner should stop ticking after the outcome")
	}
}

func TestRunEdit_Headless(t *testing.T) {
	var stages []types.Stage
	err := RunEdit(Header{VideoID: "abc"}, nil, func(r progress.Reporter) Outcome {
		r.Report(types.StageUpload)
		r.Report(types.StageEdit)
		stages = append(stages, types.StageUpload, types.StageEdit)
		return Outcome{Status: types.OutcomeSuccess, ResultID: "r"}
	}, tea.WithInput(nil), tea.WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("RunEdit failed: %v", err)
	}
	if len(stages) != 2 {
		t.Errorf("work did not complete: %v", stages)
	}
}

func TestSummaryModel_View(t *testing.T) {
	recent := []journal.SessionRecord{
		{VideoID: "vid-a", Outcome: types.OutcomeSuccess, FinishedAt: time.Now()},
		{VideoID: "vid-b", Outcome: types.OutcomeDownloadFailed, FinishedAt: time.Now()},
	}
	m := NewSummaryModel(journal.Summarize(recent), recent)

	view := m.View()
	for _, want := range []string{"Edit Sessions", "Succeeded", "Download Failed", "vid-a", "download_failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("summary view missing %q", want)
		}
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit the summary view")
	}
	if next.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestOutcomeStyle(t *testing.T) {
	if OutcomeStyle(types.OutcomeSuccess).GetForeground() != SuccessStyle.GetForeground() {
		t.Error("success should use SuccessStyle")
	}
	if OutcomeStyle(types.OutcomeDownloadFailed).GetForeground() != WarningStyle.GetForeground() {
		t.Error("classified failures should use WarningStyle")
	}
	if OutcomeStyle(types.OutcomeError).GetForeground() != ErrorStyle.GetForeground() {
		t.Error("errors should use ErrorStyle")
	}
}
