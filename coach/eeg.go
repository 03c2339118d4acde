package coach

import (
	"context"
	"net/http"
	"time"
)

const DefaultDetectInterval = 4 * time.Second

type Board struct {
	BoardID      int     `json:"board_id"`
	SamplingRate float64 `json:"sampling_rate"`
	// Channel identifiers come back as numbers or names depending on the
	// board driver.
	EEGChannels []any `json:"eeg_channels"`
}

// Reading is the reply to any of the EEG calls.
type Reading struct {
	Status           string             `json:"status"`
	Message          string             `json:"message"`
	SuggestedMessage string             `json:"suggested_message"`
	Board            *Board             `json:"board,omitempty"`
	Baseline         map[string]float64 `json:"baseline,omitempty"`
	Stressed         bool               `json:"stressed"`
}

// Advice is the text to show the speaker, falling back to the plain
// message and then to fallback.
func (r Reading) Advice(fallback string) string {
	switch {
	case r.SuggestedMessage != "":
		return r.SuggestedMessage
	case r.Message != "":
		return r.Message
	}
	return fallback
}

func (c *Client) eeg(ctx context.Context, path string) (Reading, error) {
	var r Reading
	status, err := c.call(ctx, http.MethodPost, path, &r)
	if err != nil {
		return Reading{}, err
	}
	if !ok(status) || r.Status == "error" {
		return r, &RequestError{Path: path, StatusCode: status, Message: r.Message}
	}
	return r, nil
}

// Connect pairs the headset. The reply carries the board description.
func (c *Client) Connect(ctx context.Context) (Reading, error) {
	return c.eeg(ctx, "/eeg/connect")
}

// Baseline records the speaker at rest. The speaker should stay calm
// until it returns.
func (c *Client) Baseline(ctx context.Context) (Reading, error) {
	return c.eeg(ctx, "/eeg/baseline")
}

func (c *Client) Detect(ctx context.Context) (Reading, error) {
	return c.eeg(ctx, "/eeg/detect")
}

// Calibrate runs Connect then Baseline and returns the baseline reading.
func (c *Client) Calibrate(ctx context.Context) (Reading, error) {
	conn, err := c.Connect(ctx)
	if err != nil {
		return Reading{}, err
	}
	c.Logger.Info("eeg connected", "board", boardID(conn.Board))

	base, err := c.Baseline(ctx)
	if err != nil {
		return Reading{}, err
	}
	if base.Board == nil {
		base.Board = conn.Board
	}
	c.Logger.Info("eeg baseline captured", "ratios", len(base.Baseline))
	return base, nil
}

func boardID(b *Board) int {
	if b == nil {
		return -1
	}
	return b.BoardID
}

// Digest is one detection result in a form ready to display.
type Digest struct {
	Stressed  bool
	Message   string
	Timestamp time.Time
}

func (d Digest) Label() string {
	if d.Stressed {
		return "Stress detected"
	}
	return "Calm & focused"
}

// DetectLoop calls Detect right away and then every interval until ctx
// ends or a call fails. The failure is returned; cancellation is not an
// error.
func (c *Client) DetectLoop(ctx context.Context, interval time.Duration, onDigest func(Digest)) error {
	if interval <= 0 {
		interval = DefaultDetectInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			r, err := c.Detect(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			onDigest(Digest{
				Stressed:  r.Stressed,
				Message:   r.Advice("Live detection running. Maintain steady delivery."),
				Timestamp: time.Now(),
			})
			// Wait a full interval after each reply so slow detections
			// never stack up.
			timer.Reset(interval)
		}
	}
}
