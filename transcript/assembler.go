// Package transcript keeps the running transcript of a capture session:
// permanent final text plus at most one provisional partial.
package transcript

import (
	"strings"
	"sync"
	"time"
)

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Segment is one recognised span from the service.
type Segment struct {
	Text      string
	IsFinal   bool
	Timestamp time.Time
}

// Snapshot is a consistent copy of the assembler for readers.
type Snapshot struct {
	State   State     `json:"state"`
	Text    string    `json:"text"`
	Partial string    `json:"partial"`
	Finals  int       `json:"finals"`
	Failed  bool      `json:"failed"`
	Updated time.Time `json:"updated"`
}

// Display is the cumulative text followed by the pending partial.
func (s Snapshot) Display() string {
	switch {
	case s.Partial == "":
		return s.Text
	case s.Text == "":
		return s.Partial
	}
	return s.Text + " " + s.Partial
}

// Assembler has one writer, the session's receive loop, and any number
// of readers.
type Assembler struct {
	mu      sync.RWMutex
	state   State
	text    strings.Builder
	partial string
	finals  int
	failed  bool
	updated time.Time
}

func New() *Assembler {
	return &Assembler{}
}

// Start clears the previous session's text and begins listening.
func (a *Assembler) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = Listening
	a.text.Reset()
	a.partial = ""
	a.finals = 0
	a.failed = false
	a.updated = time.Now()
}

// Apply folds a segment into the transcript and reports whether
// anything changed. Segments arriving while idle or after a failure are
// ignored.
func (a *Assembler) Apply(seg Segment) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != Listening || a.failed {
		return false
	}

	if seg.Timestamp.IsZero() {
		seg.Timestamp = time.Now()
	}
	a.updated = seg.Timestamp

	if !seg.IsFinal {
		a.partial = seg.Text
		return true
	}

	a.partial = ""
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return true
	}
	if a.text.Len() > 0 {
		a.text.WriteByte(' ')
	}
	a.text.WriteString(text)
	a.finals++
	return true
}

// Fail freezes the transcript after a session error.
func (a *Assembler) Fail() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = true
}

// Stop returns to idle. The text stays readable until the next Start.
func (a *Assembler) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Idle
}

func (a *Assembler) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Snapshot{
		State:   a.state,
		Text:    a.text.String(),
		Partial: a.partial,
		Finals:  a.finals,
		Failed:  a.failed,
		Updated: a.updated,
	}
}
