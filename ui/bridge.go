package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"podium/feedback"
	"podium/transcript"
)

type transcriptMsg transcript.Snapshot

type feedbackMsg feedback.Event

type endedMsg struct{ err error }

// Bridge is a session listener that forwards changes to the live view.
// Transcript snapshots are dropped when the view falls behind because a
// later snapshot supersedes them; feedback and endings always arrive.
type Bridge struct {
	msgs chan tea.Msg
	done chan struct{}
	once sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		msgs: make(chan tea.Msg, 256),
		done: make(chan struct{}),
	}
}

func (b *Bridge) TranscriptChanged(s transcript.Snapshot) {
	select {
	case b.msgs <- transcriptMsg(s):
	default:
	}
}

func (b *Bridge) FeedbackAdded(e feedback.Event) { b.deliver(feedbackMsg(e)) }

func (b *Bridge) SessionEnded(err error) { b.deliver(endedMsg{err}) }

func (b *Bridge) deliver(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	case <-b.done:
	}
}

// Detach stops delivery once the view has exited.
func (b *Bridge) Detach() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.msgs:
			return msg
		case <-b.done:
			return nil
		}
	}
}
