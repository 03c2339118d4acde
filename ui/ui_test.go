package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"podium/feedback"
	"podium/session"
	"podium/transcript"
)

type mockController struct {
	active   bool
	starts   int
	stops    int
	err      error
	feedback *feedback.Queue
}

func (m *mockController) Start(ctx context.Context) error {
	m.starts++
	if m.err != nil {
		return m.err
	}
	m.active = true
	return nil
}

func (m *mockController) Stop(ctx context.Context) error {
	m.stops++
	m.active = false
	return nil
}

func (m *mockController) Active() bool       { return m.active }
func (m *mockController) Mode() session.Mode { return session.Streaming }

func (m *mockController) FeedbackNewest() []feedback.Event {
	if m.feedback == nil {
		return nil
	}
	return m.feedback.Newest()
}

// collect runs cmd and any batched commands it holds.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, collect(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

func sized(ctrl Controller) model {
	m := newModel(context.Background(), ctrl, NewBridge())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	return next.(model)
}

func update(m model, msg tea.Msg) (model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestTranscriptView(t *testing.T) {
	tests := []struct {
		name string
		snap transcript.Snapshot
		want string
	}{
		{"empty", transcript.Snapshot{}, ""},
		{"final only", transcript.Snapshot{Text: "hello world"}, "hello world"},
		{"partial only", transcript.Snapshot{Partial: "and"}, "and"},
		{"both", transcript.Snapshot{Text: "hello world", Partial: "and"}, "hello world and"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transcriptView(tt.snap, 0); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFeedbackViewNewestFirst(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	q := feedback.NewQueue()
	q.Push(feedback.Event{Text: "Good pace", Timestamp: ts, Origin: feedback.Speech})
	q.Push(feedback.Event{Text: "um", StutteringDetected: true, Timestamp: ts.Add(time.Second), Origin: feedback.Speech})
	view := feedbackView(q.Newest())

	first := strings.Index(view, "um")
	second := strings.Index(view, "Good pace")
	if first < 0 || second < 0 || first > second {
		t.Errorf("Expected newest event first, got:\n%s", view)
	}
	if !strings.Contains(view, "⚠ um") {
		t.Errorf("Expected flagged event to be marked, got:\n%s", view)
	}
	if !strings.Contains(view, "10:00:01") {
		t.Errorf("Expected event time, got:\n%s", view)
	}
}

func TestToggleSession(t *testing.T) {
	ctrl := &mockController{}
	m := sized(ctrl)

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeySpace})
	if !m.busy {
		t.Fatal("Expected the model to be busy while starting")
	}
	if !strings.Contains(m.footerView(), "starting") {
		t.Errorf("Expected starting status, got %q", m.footerView())
	}

	// A second press while busy does nothing.
	m, _ = update(m, tea.KeyMsg{Type: tea.KeySpace})

	var started tea.Msg
	for _, msg := range collect(cmd) {
		if _, ok := msg.(startedMsg); ok {
			started = msg
		}
	}
	if started == nil {
		t.Fatal("Expected a startedMsg from the start command")
	}
	if ctrl.starts != 1 {
		t.Fatalf("Expected 1 start, got %d", ctrl.starts)
	}

	m, _ = update(m, started)
	if m.busy {
		t.Error("Expected the model to be idle after start")
	}
	if !strings.Contains(m.footerView(), "streaming 0:00") {
		t.Errorf("Expected running status, got %q", m.footerView())
	}

	m, cmd = update(m, tea.KeyMsg{Type: tea.KeySpace})
	var stopped tea.Msg
	for _, msg := range collect(cmd) {
		if _, ok := msg.(stoppedMsg); ok {
			stopped = msg
		}
	}
	if stopped == nil || ctrl.stops != 1 {
		t.Fatalf("Expected one stop, got %d", ctrl.stops)
	}
	m, _ = update(m, stopped)
	m, _ = update(m, endedMsg{})
	if !strings.Contains(m.footerView(), "idle") {
		t.Errorf("Expected idle status after the session ended, got %q", m.footerView())
	}
}

func TestStartFailureShown(t *testing.T) {
	m := sized(&mockController{})
	m, _ = update(m, startedMsg{err: errors.New("acquire default input: no device")})
	if !strings.Contains(m.footerView(), "no device") {
		t.Errorf("Expected the error in the footer, got %q", m.footerView())
	}
}

func TestTranscriptAndFeedbackMessages(t *testing.T) {
	ctrl := &mockController{active: true, feedback: feedback.NewQueue()}
	m := sized(ctrl)

	m, _ = update(m, transcriptMsg(transcript.Snapshot{Text: "so today", Partial: "we"}))
	if !strings.Contains(m.viewport.View(), "so today we") {
		t.Errorf("Expected transcript in view, got:\n%s", m.viewport.View())
	}

	e := ctrl.feedback.Push(feedback.Event{Text: "Pacing detected", Origin: feedback.Gesture})
	m, _ = update(m, feedbackMsg(e))
	if strings.Contains(m.viewport.View(), "Pacing detected") {
		t.Error("Expected feedback to stay hidden in the transcript view")
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	if !strings.Contains(m.headerView(), "Feedback (1)") {
		t.Errorf("Expected feedback header, got %q", m.headerView())
	}
	if !strings.Contains(m.viewport.View(), "Pacing detected") {
		t.Errorf("Expected feedback in view, got:\n%s", m.viewport.View())
	}
}

func TestQuit(t *testing.T) {
	m := sized(&mockController{})
	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected q to quit")
	}
}

func TestBridge(t *testing.T) {
	b := NewBridge()

	// Snapshots never block, even when nobody reads them.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.TranscriptChanged(transcript.Snapshot{Finals: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("TranscriptChanged blocked")
	}

	msg := b.wait()()
	if s, ok := msg.(transcriptMsg); !ok || s.Finals != 0 {
		t.Errorf("Expected the first snapshot, got %#v", msg)
	}

	// Once detached, blocked deliveries give up.
	ended := make(chan struct{})
	go func() {
		b.SessionEnded(nil)
		close(ended)
	}()
	b.Detach()
	b.Detach()
	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("SessionEnded blocked after Detach")
	}
}

func TestWriteSummary(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snap := transcript.Snapshot{Text: "thank you all for coming"}

	var buf bytes.Buffer
	WriteSummary(&buf, snap, []feedback.Event{
		{ID: 1, Text: "Hand-to-face detected", Timestamp: start.Add(5 * time.Second), Origin: feedback.Gesture, StutteringDetected: true},
		{ID: 2, Text: "Nice energy", Timestamp: start.Add(75 * time.Second), Origin: feedback.Speech},
	}, start)
	out := buf.String()

	for _, want := range []string{"Hand-to-face detected", "0:05", "1:15", "gesture", "thank you all for coming"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.Contains(strings.ToUpper(out), "2 EVENTS") {
		t.Errorf("Expected event count in footer, got:\n%s", out)
	}

	buf.Reset()
	WriteSummary(&buf, transcript.Snapshot{}, nil, time.Time{})
	if buf.String() != "No feedback.\n" {
		t.Errorf("Expected %q, got %q", "No feedback.\n", buf.String())
	}
}
