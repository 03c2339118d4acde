// Package ui is the terminal live view: the running transcript, the
// coaching feedback and a key to start and stop the session.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"podium/etc"
	"podium/feedback"
	"podium/session"
	"podium/transcript"
)

// Controller is the part of session.Controller the view drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Active() bool
	Mode() session.Mode
	FeedbackNewest() []feedback.Event
}

var (
	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)
	finalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	flaggedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	originStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
)

type startedMsg struct{ err error }

type stoppedMsg struct{ err error }

type tickMsg time.Time

type model struct {
	ctx    context.Context
	ctrl   Controller
	bridge *Bridge

	viewport     viewport.Model
	ready        bool
	showFeedback bool

	snap     transcript.Snapshot
	feedback []feedback.Event // newest first
	busy     bool
	started  time.Time
	now      time.Time
	err      error
}

func newModel(ctx context.Context, ctrl Controller, bridge *Bridge) model {
	return model{ctx: ctx, ctrl: ctrl, bridge: bridge, now: time.Now()}
}

// Run shows the live view until the user quits or ctx ends. Sessions it
// starts use sessionCtx, so they stay up after the view exits until the
// caller stops them. If start is set a session begins immediately.
func Run(ctx, sessionCtx context.Context, ctrl Controller, bridge *Bridge, start bool) error {
	m := newModel(sessionCtx, ctrl, bridge)
	if start {
		m.busy = true
	}
	defer bridge.Detach()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.bridge.wait(), tick()}
	if m.busy {
		cmds = append(cmds, m.start())
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{m.ctrl.Start(m.ctx)}
	}
}

func (m model) stop() tea.Cmd {
	return func() tea.Msg {
		return stoppedMsg{m.ctrl.Stop(m.ctx)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "tab":
			m.showFeedback = !m.showFeedback
			m.refresh()
		case " ", "space":
			if m.busy {
				break
			}
			m.busy = true
			m.err = nil
			if m.ctrl.Active() {
				cmds = append(cmds, m.stop())
			} else {
				m.snap = transcript.Snapshot{}
				m.feedback = nil
				cmds = append(cmds, m.start())
			}
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}
		m.refresh()

	case startedMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.started = time.Now()
		}
		m.refresh()

	case stoppedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
		}

	case transcriptMsg:
		m.snap = transcript.Snapshot(msg)
		m.refresh()
		cmds = append(cmds, m.bridge.wait())

	case feedbackMsg:
		m.feedback = m.ctrl.FeedbackNewest()
		m.refresh()
		cmds = append(cmds, m.bridge.wait())

	case endedMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		m.started = time.Time{}
		cmds = append(cmds, m.bridge.wait())

	case tickMsg:
		m.now = time.Time(msg)
		cmds = append(cmds, tick())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// refresh redraws the viewport and keeps the newest text in sight.
func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.contentView())
	if m.showFeedback {
		m.viewport.GotoTop()
	} else {
		m.viewport.GotoBottom()
	}
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
	)
}

func (m model) headerView() string {
	name := "Transcript"
	if m.showFeedback {
		name = fmt.Sprintf("Feedback (%d)", len(m.feedback))
	}
	title := barStyle.Render(name)
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, line)
}

func (m model) status() string {
	switch {
	case m.busy && m.ctrl.Active():
		return "stopping…"
	case m.busy:
		return "starting…"
	case m.err != nil:
		return errorStyle.Render(m.err.Error())
	case !m.started.IsZero():
		return fmt.Sprintf("● %s %s", m.ctrl.Mode(), etc.Clock(m.now.Sub(m.started)))
	}
	return "idle"
}

func (m model) footerView() string {
	status := m.status()
	info := barStyle.Render("space start/stop · tab switch view · q quit")
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(info)-lipgloss.Width(status)-2))
	return lipgloss.JoinHorizontal(lipgloss.Center, " "+status+" ", line, info)
}

func (m model) contentView() string {
	if m.showFeedback {
		return feedbackView(m.feedback)
	}
	return transcriptView(m.snap, m.viewport.Width)
}

// transcriptView renders permanent text bright and the pending partial
// dim after it.
func transcriptView(s transcript.Snapshot, width int) string {
	var b strings.Builder
	if s.Text != "" {
		b.WriteString(finalStyle.Render(s.Text))
	}
	if s.Partial != "" {
		if s.Text != "" {
			b.WriteString(" ")
		}
		b.WriteString(partialStyle.Render(s.Partial))
	}
	if width <= 0 {
		return b.String()
	}
	return lipgloss.NewStyle().Width(width).Render(b.String())
}

func feedbackView(events []feedback.Event) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(originStyle.Render(fmt.Sprintf("%-8s", e.Origin)))
		b.WriteString(" ")
		b.WriteString(e.Timestamp.Format("15:04:05"))
		b.WriteString(" ")
		if e.StutteringDetected {
			b.WriteString(flaggedStyle.Render("⚠ " + e.Text))
		} else {
			b.WriteString(e.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}
