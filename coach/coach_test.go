package coach

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"podium/feedback"
)

func TestEEGCalls(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"ok", http.StatusOK, `{"status":"ok","suggested_message":"Breathe","stressed":true}`, ""},
		{"error status field", http.StatusOK, `{"status":"error","message":"Muse not found"}`, "Muse not found"},
		{"http failure with message", http.StatusServiceUnavailable, `{"message":"busy"}`, "busy"},
		{"http failure without body", http.StatusInternalServerError, ``, "Request to /eeg/detect failed."},
		{"http failure with html", http.StatusBadGateway, `<html>oops</html>`, "Request to /eeg/detect failed."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/eeg/detect" {
					t.Errorf("Expected /eeg/detect, got %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r, err := NewClient(srv.URL, nil).Detect(context.Background())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Detect: %v", err)
				}
				if !r.Stressed || r.Advice("") != "Breathe" {
					t.Errorf("Unexpected reading %+v", r)
				}
				return
			}

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("Expected *RequestError, got %v", err)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Expected error %q, got %q", tt.wantErr, err.Error())
			}
			if reqErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, reqErr.StatusCode)
			}
		})
	}
}

func TestCalibrate(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/eeg/connect":
			w.Write([]byte(`{"status":"ok","board":{"board_id":38,"sampling_rate":256,"eeg_channels":[1,2,3,4]}}`))
		case "/eeg/baseline":
			w.Write([]byte(`{"status":"ok","baseline":{"TP9":1.2,"AF7":0.8}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r, err := NewClient(srv.URL, nil).Calibrate(context.Background())
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || calls[0] != "/eeg/connect" || calls[1] != "/eeg/baseline" {
		t.Errorf("Expected connect then baseline, got %v", calls)
	}
	if r.Board == nil || r.Board.BoardID != 38 || len(r.Board.EEGChannels) != 4 {
		t.Errorf("Expected board from connect, got %+v", r.Board)
	}
	if r.Baseline["TP9"] != 1.2 {
		t.Errorf("Expected TP9 baseline 1.2, got %v", r.Baseline["TP9"])
	}
	if got := r.Advice("Baseline captured. Ready for emotion detection."); got != "Baseline captured. Ready for emotion detection." {
		t.Errorf("Expected fallback advice, got %q", got)
	}
}

func TestDetectLoopStopsOnError(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) >= 3 {
			w.Write([]byte(`{"status":"error","message":"headset lost"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","stressed":false}`))
	}))
	defer srv.Close()

	var digests []Digest
	err := NewClient(srv.URL, nil).DetectLoop(context.Background(), time.Millisecond, func(d Digest) {
		digests = append(digests, d)
	})
	if err == nil || err.Error() != "headset lost" {
		t.Fatalf("Expected headset lost, got %v", err)
	}
	if len(digests) != 2 {
		t.Fatalf("Expected 2 digests before the failure, got %d", len(digests))
	}
	if digests[0].Label() != "Calm & focused" {
		t.Errorf("Expected calm label, got %q", digests[0].Label())
	}
	if digests[0].Message != "Live detection running. Maintain steady delivery." {
		t.Errorf("Expected default detection message, got %q", digests[0].Message)
	}
}

func TestDetectLoopCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","stressed":true}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var got atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- NewClient(srv.URL, nil).DetectLoop(ctx, time.Hour, func(d Digest) {
			if d.Label() != "Stress detected" {
				t.Errorf("Expected stress label, got %q", d.Label())
			}
			got.Add(1)
			cancel()
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DetectLoop did not return after cancel")
	}
	if got.Load() != 1 {
		t.Errorf("Expected the first poll to run immediately, got %d digests", got.Load())
	}
}

func TestRising(t *testing.T) {
	now := time.Unix(100, 0)
	tests := []struct {
		name string
		prev Flags
		cur  Flags
		want []Gesture
	}{
		{"nothing", Flags{}, Flags{}, nil},
		{"first sighting", Flags{}, Flags{Pacing: 1, TooStill: 1}, []Gesture{Pacing, TooStill}},
		{"held", Flags{Pacing: 1}, Flags{Pacing: 1}, nil},
		{"released", Flags{HeadTilt: 1}, Flags{}, nil},
		{"reappears", Flags{HipSway: 0, HandToMouth: 1}, Flags{HipSway: 1, HandToMouth: 1}, []Gesture{HipSway}},
		{"only exact one counts", Flags{}, Flags{HeadTilt: 2}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := Rising(tt.prev, tt.cur, now)
			if len(alerts) != len(tt.want) {
				t.Fatalf("Expected %d alerts, got %+v", len(tt.want), alerts)
			}
			for i, a := range alerts {
				if a.Gesture != tt.want[i] {
					t.Errorf("Alert %d: expected %s, got %s", i, tt.want[i], a.Gesture)
				}
				if a.Label != tt.want[i].Label() || !a.Time.Equal(now) {
					t.Errorf("Alert %d: unexpected %+v", i, a)
				}
			}
		})
	}
}

func TestLabels(t *testing.T) {
	want := map[Gesture]string{
		HipSway:          "Hip sway detected",
		Pacing:           "Pacing detected",
		HeadTilt:         "Head tilt detected",
		HandToMouth:      "Hand-to-face detected",
		TooStill:         "Too little movement detected",
		Gesture("shrug"): "Gesture detected",
	}
	for g, label := range want {
		if g.Label() != label {
			t.Errorf("Expected %q for %s, got %q", label, g, g.Label())
		}
	}
}

type gestureServer struct {
	mu     sync.Mutex
	frames []Flags
	fail   bool
}

func (s *gestureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var f Flags
	if len(s.frames) > 0 {
		f, s.frames = s.frames[0], s.frames[1:]
	}
	json.NewEncoder(w).Encode(f)
}

func TestPollerPoll(t *testing.T) {
	gs := &gestureServer{frames: []Flags{
		{Pacing: 1},
		{Pacing: 1, HeadTilt: 1},
		{},
		{Pacing: 1},
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	p := NewPoller(NewClient(srv.URL, nil), 0)
	if p.Interval != DefaultGestureInterval {
		t.Errorf("Expected default interval, got %v", p.Interval)
	}

	var got []Gesture
	for i := 0; i < 4; i++ {
		alerts, err := p.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
		for _, a := range alerts {
			got = append(got, a.Gesture)
		}
	}

	want := []Gesture{Pacing, HeadTilt, Pacing}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}

	gs.mu.Lock()
	gs.fail = true
	gs.mu.Unlock()
	if _, err := p.Poll(context.Background()); err == nil {
		t.Error("Expected an error for a failing tracker")
	}
}

type mockAnnotator struct {
	mu     sync.Mutex
	notes  []feedback.Event
	reject bool
}

func (m *mockAnnotator) Annotate(origin feedback.Origin, text string, flagged bool) (feedback.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return feedback.Event{}, errors.New("no session")
	}
	e := feedback.Event{Text: text, StutteringDetected: flagged, Origin: origin}
	m.notes = append(m.notes, e)
	return e, nil
}

func (m *mockAnnotator) events() []feedback.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]feedback.Event(nil), m.notes...)
}

func TestWatchGestures(t *testing.T) {
	srv := httptest.NewServer(&gestureServer{frames: []Flags{{HandToMouth: 1}}})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &mockAnnotator{}
	done := make(chan struct{})
	go func() {
		WatchGestures(ctx, NewPoller(NewClient(srv.URL, nil), time.Millisecond), a)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(a.events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	notes := a.events()
	if len(notes) != 1 {
		t.Fatalf("Expected 1 annotation, got %d", len(notes))
	}
	if notes[0].Origin != feedback.Gesture || notes[0].Text != "Hand-to-face detected" || !notes[0].StutteringDetected {
		t.Errorf("Unexpected annotation %+v", notes[0])
	}
}

func TestWatchEEGAnnotatesChanges(t *testing.T) {
	replies := []string{
		`{"status":"ok","stressed":false,"suggested_message":"Good pace"}`,
		`{"status":"ok","stressed":false}`,
		`{"status":"ok","stressed":true,"suggested_message":"Slow down"}`,
		`{"status":"error","message":"done"}`,
	}
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(replies[int(n.Add(1))-1]))
	}))
	defer srv.Close()

	a := &mockAnnotator{}
	err := WatchEEG(context.Background(), NewClient(srv.URL, nil), time.Millisecond, a)
	if err == nil || err.Error() != "done" {
		t.Fatalf("Expected the loop to end with the server error, got %v", err)
	}

	notes := a.events()
	if len(notes) != 2 {
		t.Fatalf("Expected 2 annotations for 2 state changes, got %d", len(notes))
	}
	if notes[0].Text != "Calm & focused: Good pace" || notes[0].StutteringDetected {
		t.Errorf("Unexpected first annotation %+v", notes[0])
	}
	if notes[1].Text != "Stress detected: Slow down" || !notes[1].StutteringDetected || notes[1].Origin != feedback.EEG {
		t.Errorf("Unexpected second annotation %+v", notes[1])
	}
}
