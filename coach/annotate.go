package coach

import (
	"context"
	"time"

	"podium/feedback"
)

// Annotator receives collaborator notes. session.Controller implements it.
type Annotator interface {
	Annotate(origin feedback.Origin, text string, flagged bool) (feedback.Event, error)
}

// WatchGestures feeds gesture alerts into a until ctx ends. Alerts that
// arrive while no session is active are dropped.
func WatchGestures(ctx context.Context, p *Poller, a Annotator) {
	p.Run(ctx, func(alert Alert) {
		if _, err := a.Annotate(feedback.Gesture, alert.Label, true); err != nil {
			p.Client.Logger.Debug("gesture alert dropped", "gesture", alert.Gesture, "error", err)
		}
	})
}

// WatchEEG runs the detection loop and annotates whenever the speaker's
// stress state changes.
func WatchEEG(ctx context.Context, c *Client, interval time.Duration, a Annotator) error {
	var last *bool
	return c.DetectLoop(ctx, interval, func(d Digest) {
		if last != nil && *last == d.Stressed {
			return
		}
		text := d.Label() + ": " + d.Message
		if _, err := a.Annotate(feedback.EEG, text, d.Stressed); err != nil {
			c.Logger.Debug("eeg digest dropped", "error", err)
			return
		}
		stressed := d.Stressed
		last = &stressed
	})
}
