package www

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"podium/feedback"
	"podium/metrics"
	"podium/session"
	"podium/transcript"
)

type mockController struct {
	active   bool
	id       string
	snap     transcript.Snapshot
	feedback *feedback.Queue
	metrics  *metrics.Metrics
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (m *mockController) Start(ctx context.Context) error {
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.active = true
	m.id = "abc"
	return nil
}

func (m *mockController) Stop(ctx context.Context) error {
	m.stops++
	m.active = false
	return m.stopErr
}

func (m *mockController) Active() bool                    { return m.active }
func (m *mockController) SessionID() string               { return m.id }
func (m *mockController) Mode() session.Mode              { return session.Streaming }
func (m *mockController) Transcript() transcript.Snapshot { return m.snap }
func (m *mockController) Metrics() *metrics.Metrics       { return m.metrics }

func (m *mockController) FeedbackNewest() []feedback.Event         { return m.feedback.Newest() }
func (m *mockController) FeedbackSince(id uint64) []feedback.Event { return m.feedback.Since(id) }

func newTestServer(m *mockController) *httptest.Server {
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.feedback == nil {
		m.feedback = feedback.NewQueue()
	}
	return httptest.NewServer(NewServer(context.Background(), m, nil))
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&mockController{})
	defer srv.Close()

	resp, body := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || body != "ok\n" {
		t.Errorf("Expected 200 ok, got %d %q", resp.StatusCode, body)
	}
}

func TestTranscript(t *testing.T) {
	srv := newTestServer(&mockController{
		id: "s1",
		snap: transcript.Snapshot{
			State:   transcript.Listening,
			Text:    "hello world",
			Partial: "and",
			Finals:  2,
		},
	})
	defer srv.Close()

	resp, body := get(t, srv.URL+"/transcript")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var got transcriptResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	if got.SessionID != "s1" || got.State != "listening" || got.Mode != "streaming" {
		t.Errorf("Unexpected header fields %+v", got)
	}
	if got.Display != "hello world and" {
		t.Errorf("Expected display %q, got %q", "hello world and", got.Display)
	}
}

func TestFeedback(t *testing.T) {
	q := feedback.NewQueue()
	q.Push(feedback.Event{Text: "slow down"})
	q.Push(feedback.Event{Text: "um", StutteringDetected: true})
	q.Push(feedback.Event{Text: "Pacing detected", Origin: feedback.Gesture})
	m := &mockController{feedback: q}
	srv := newTestServer(m)
	defer srv.Close()

	tests := []struct {
		query  string
		status int
		ids    []uint64
	}{
		{"", http.StatusOK, []uint64{1, 2, 3}},
		{"?order=newest", http.StatusOK, []uint64{3, 2, 1}},
		{"?since=1", http.StatusOK, []uint64{2, 3}},
		{"?since=1&order=newest", http.StatusOK, []uint64{3, 2}},
		{"?since=3", http.StatusOK, []uint64{}},
		{"?order=sideways", http.StatusBadRequest, nil},
		{"?since=x", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, body := get(t, srv.URL+"/feedback"+tt.query)
			if resp.StatusCode != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			if tt.status != http.StatusOK {
				return
			}
			var events []feedback.Event
			if err := json.Unmarshal([]byte(body), &events); err != nil {
				t.Fatalf("decode %q: %v", body, err)
			}
			if len(events) != len(tt.ids) {
				t.Fatalf("Expected %d events, got %d", len(tt.ids), len(events))
			}
			for i, e := range events {
				if e.ID != tt.ids[i] {
					t.Errorf("Event %d: expected id %d, got %d", i, tt.ids[i], e.ID)
				}
			}
		})
	}

	if events := q.Events(); len(events) != 3 || events[0].ID != 1 {
		t.Error("Expected newest ordering to leave the controller's events untouched")
	}
}

func TestMetrics(t *testing.T) {
	m := &mockController{metrics: metrics.New()}
	m.metrics.FramesDropped.Add(3)
	srv := newTestServer(m)
	defer srv.Close()

	resp, body := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "podium_frames_dropped_total 3") {
		t.Errorf("Expected dropped frame counter in output, got:\n%s", body)
	}
}

func TestRoutesList(t *testing.T) {
	srv := newTestServer(&mockController{})
	defer srv.Close()

	routes := []string{"GET /transcript", "GET /feedback", "POST /session", "DELETE /session"}

	resp, body := get(t, srv.URL+"/")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected an HTML route list, got %q", ct)
	}
	for _, want := range routes {
		if !strings.Contains(body, "<li><code>"+want+"</code></li>") {
			t.Errorf("Expected route list to contain %q, got:\n%s", want, body)
		}
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept", "text/plain")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected a plain route list, got %q", ct)
	}
	for _, want := range routes {
		if !strings.Contains(string(data), want+"\n") {
			t.Errorf("Expected plain route list to contain %q, got:\n%s", want, data)
		}
	}
}

func TestRoutesListEscapes(t *testing.T) {
	var b strings.Builder
	if err := RoutesList([]string{"GET /<x>"}).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(b.String(), "GET /&lt;x&gt;") {
		t.Errorf("Expected escaped route, got %q", b.String())
	}
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	resp.Body.Close()
	return resp
}

func TestSessionControl(t *testing.T) {
	tests := []struct {
		name   string
		m      *mockController
		method string
		status int
	}{
		{"start", &mockController{}, http.MethodPost, http.StatusCreated},
		{"start while active", &mockController{startErr: session.ErrSessionActive}, http.MethodPost, http.StatusConflict},
		{"start after close", &mockController{startErr: session.ErrClosed}, http.MethodPost, http.StatusServiceUnavailable},
		{"start fails", &mockController{startErr: errors.New("no mic")}, http.MethodPost, http.StatusBadGateway},
		{"stop", &mockController{active: true}, http.MethodDelete, http.StatusOK},
		{"stop idle", &mockController{}, http.MethodDelete, http.StatusNotFound},
		{"stop fails", &mockController{active: true, stopErr: errors.New("upload failed")}, http.MethodDelete, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.m)
			defer srv.Close()

			resp := do(t, tt.method, srv.URL+"/session")
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}
