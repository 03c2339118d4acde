package stt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is one decoded inbound message: Transcript, Feedback or Error.
type Event interface {
	event()
}

// Transcript is a recognised span of speech. Non-final transcripts are
// provisional and replaced by the next one.
type Transcript struct {
	Text      string
	IsFinal   bool
	Timestamp float64
}

// Feedback is a coaching note on the speech so far. Timestamp is in
// seconds since the Unix epoch as reported by the server.
type Feedback struct {
	Text               string
	StutteringDetected bool
	Timestamp          float64
}

// Error is a server-reported failure. It ends the session.
type Error struct {
	Message string
}

func (Transcript) event() {}
func (Feedback) event()   {}
func (Error) event()      {}

var ErrMalformed = errors.New("malformed message")

type wireMessage struct {
	Type               string  `json:"type"`
	Text               *string `json:"text"`
	Transcript         *string `json:"transcript"`
	IsFinal            bool    `json:"is_final"`
	Feedback           *string `json:"feedback"`
	StutteringDetected bool    `json:"stuttering_detected"`
	Timestamp          float64 `json:"timestamp"`
	Error              *string `json:"error"`
	Message            *string `json:"message"`
}

// Decode parses one inbound message. Untyped messages carrying a bare
// "transcript" or "error" field are accepted as well.
func Decode(data []byte) (Event, error) {
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch m.Type {
	case "transcript":
		text := m.Text
		if text == nil {
			text = m.Transcript
		}
		if text == nil {
			return nil, fmt.Errorf("%w: transcript without text", ErrMalformed)
		}
		return Transcript{Text: *text, IsFinal: m.IsFinal, Timestamp: m.Timestamp}, nil

	case "ai_feedback":
		if m.Feedback == nil {
			return nil, fmt.Errorf("%w: feedback without text", ErrMalformed)
		}
		return Feedback{
			Text:               *m.Feedback,
			StutteringDetected: m.StutteringDetected,
			Timestamp:          m.Timestamp,
		}, nil

	case "error":
		return Error{Message: errorText(m)}, nil

	case "":
		switch {
		case m.Error != nil:
			return Error{Message: errorText(m)}, nil
		case m.Transcript != nil:
			return Transcript{Text: *m.Transcript, IsFinal: m.IsFinal, Timestamp: m.Timestamp}, nil
		}
		return nil, fmt.Errorf("%w: no type", ErrMalformed)
	}

	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
}

func errorText(m wireMessage) string {
	switch {
	case m.Error != nil && *m.Error != "":
		return *m.Error
	case m.Message != nil && *m.Message != "":
		return *m.Message
	}
	return "unspecified server error"
}

// TypeName is a stable label for an event, used in logs and metrics.
func TypeName(e Event) string {
	switch e.(type) {
	case Transcript:
		return "transcript"
	case Feedback:
		return "feedback"
	case Error:
		return "error"
	}
	return "unknown"
}
