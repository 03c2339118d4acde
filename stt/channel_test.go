package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"podium/pcm"
)

var upgrader = websocket.Upgrader{}

// fakeService upgrades the connection and hands it to script.
func fakeService(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialer(srv *httptest.Server) *Dialer {
	return &Dialer{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		PingInterval: -1,
		Logger:       log.New(io.Discard),
	}
}

func collect(t *testing.T, ch *Channel) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestChannelSendsAudioAsBase64JSON(t *testing.T) {
	received := make(chan []byte, 1)
	srv := fakeService(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		conn.ReadMessage()
	})

	ch, err := dialer(srv).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	if err := ch.Send(pcm.Frame{1, -1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case data := <-received:
		var msg map[string]string
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("server got non-JSON %q", data)
		}
		// 0x0001, 0xffff little-endian.
		if msg["audio"] != "AQD//w==" {
			t.Errorf("Expected base64 AQD//w==, got %q", msg["audio"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received audio")
	}
}

func TestChannelDeliversEventsInOrder(t *testing.T) {
	srv := fakeService(t, func(conn *websocket.Conn) {
		for _, m := range []string{
			`{"type":"transcript","text":"one","is_final":false}`,
			`garbage`,
			`{"type":"transcript","text":"one two","is_final":true}`,
			`{"type":"ai_feedback","feedback":"nice pace","stuttering_detected":false,"timestamp":12.5}`,
		} {
			conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	})

	var malformed int
	d := dialer(srv)
	d.OnMalformed = func([]byte, error) { malformed++ }

	ch, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	got := collect(t, ch)
	want := []Event{
		Transcript{Text: "one"},
		Transcript{Text: "one two", IsFinal: true},
		Feedback{Text: "nice pace", Timestamp: 12.5},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d: %#v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %#v, got %#v", i, want[i], got[i])
		}
	}
	if malformed != 1 {
		t.Errorf("Expected 1 malformed message, got %d", malformed)
	}

	// The server hung up on its own, which the session must hear about.
	var te *TransportError
	if !errors.As(ch.Err(), &te) || te.Op != "receive" {
		t.Errorf("Expected receive TransportError, got %v", ch.Err())
	}
}

func TestChannelLocalCloseIsClean(t *testing.T) {
	srv := fakeService(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch, err := dialer(srv).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, ok := <-ch.Events(); ok {
		t.Error("Expected events channel to be closed")
	}
	if ch.Err() != nil {
		t.Errorf("Expected no error after local close, got %v", ch.Err())
	}
	if err := ch.Send(pcm.Frame{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := dialer(srv).Dial(context.Background())
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Fatalf("Expected dial TransportError, got %v", err)
	}
}
