package coach

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const DefaultGestureInterval = 2500 * time.Millisecond

type Gesture string

const (
	HipSway     Gesture = "hipsway"
	Pacing      Gesture = "pacing"
	HeadTilt    Gesture = "headtilt"
	HandToMouth Gesture = "handtomouth"
	TooStill    Gesture = "toostill"
)

// Gestures lists every tracked gesture in report order.
var Gestures = []Gesture{HipSway, Pacing, HeadTilt, HandToMouth, TooStill}

func (g Gesture) Label() string {
	switch g {
	case HipSway:
		return "Hip sway detected"
	case Pacing:
		return "Pacing detected"
	case HeadTilt:
		return "Head tilt detected"
	case HandToMouth:
		return "Hand-to-face detected"
	case TooStill:
		return "Too little movement detected"
	}
	return "Gesture detected"
}

// Flags is one snapshot from the gesture tracker. A flag of 1 means the
// gesture is currently seen. Message is set instead of flags when the
// tracker has nothing to report, such as when nobody is in frame.
type Flags struct {
	HipSway     int    `json:"hipsway"`
	Pacing      int    `json:"pacing"`
	HeadTilt    int    `json:"headtilt"`
	HandToMouth int    `json:"handtomouth"`
	TooStill    int    `json:"toostill"`
	Message     string `json:"message,omitempty"`
}

func (f Flags) Get(g Gesture) int {
	switch g {
	case HipSway:
		return f.HipSway
	case Pacing:
		return f.Pacing
	case HeadTilt:
		return f.HeadTilt
	case HandToMouth:
		return f.HandToMouth
	case TooStill:
		return f.TooStill
	}
	return 0
}

func (c *Client) Gestures(ctx context.Context) (Flags, error) {
	var f Flags
	status, err := c.call(ctx, http.MethodGet, "/gesture_data", &f)
	if err != nil {
		return Flags{}, err
	}
	if !ok(status) {
		return Flags{}, fmt.Errorf("fetch gesture data: unexpected status code: %d", status)
	}
	return f, nil
}

type Alert struct {
	Gesture Gesture
	Label   string
	Time    time.Time
}

// Rising returns an alert for every gesture that is flagged in cur but
// was not in prev.
func Rising(prev, cur Flags, now time.Time) []Alert {
	var alerts []Alert
	for _, g := range Gestures {
		if cur.Get(g) == 1 && prev.Get(g) != 1 {
			alerts = append(alerts, Alert{Gesture: g, Label: g.Label(), Time: now})
		}
	}
	return alerts
}

// Poller turns gesture snapshots into alerts.
type Poller struct {
	Client   *Client
	Interval time.Duration

	prev Flags
}

func NewPoller(c *Client, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultGestureInterval
	}
	return &Poller{Client: c, Interval: interval}
}

// Poll fetches one snapshot and returns the gestures that just started.
func (p *Poller) Poll(ctx context.Context) ([]Alert, error) {
	cur, err := p.Client.Gestures(ctx)
	if err != nil {
		return nil, err
	}
	alerts := Rising(p.prev, cur, time.Now())
	p.prev = cur
	return alerts, nil
}

// Run polls right away and then every interval until ctx ends. Failed
// polls are logged and skipped.
func (p *Poller) Run(ctx context.Context, onAlert func(Alert)) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		alerts, err := p.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			p.Client.Logger.Warn("gesture polling", "error", err)
		}
		for _, a := range alerts {
			onAlert(a)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
