// Package stt talks to the transcription service: a websocket for live
// streaming and a multipart upload for whole recordings.
package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"podium/pcm"
)

const (
	DefaultPingInterval = 20 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	eventBuffer         = 64
)

// StreamURL derives the websocket address from an http(s) endpoint.
func StreamURL(endpoint, path string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	return u.JoinPath(path).String(), nil
}

// Dialer opens streaming channels.
type Dialer struct {
	URL          string
	Header       http.Header
	PingInterval time.Duration
	WriteTimeout time.Duration
	Logger       *log.Logger

	// OnMalformed, if set, sees every inbound message that fails to decode.
	OnMalformed func(data []byte, err error)
}

type audioMessage struct {
	Audio []byte `json:"audio"`
}

// Channel is one open streaming connection. Send may be called from one
// goroutine while another drains Events.
type Channel struct {
	conn         *websocket.Conn
	logger       *log.Logger
	writeTimeout time.Duration
	onMalformed  func([]byte, error)

	writeMu  sync.Mutex
	events   chan Event
	done     chan struct{}
	readDone chan struct{}
	closed   atomic.Bool
	once     sync.Once

	errMu sync.Mutex
	err   error
}

func (d *Dialer) Dial(ctx context.Context) (*Channel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &Channel{
		conn:         conn,
		logger:       d.Logger,
		writeTimeout: d.WriteTimeout,
		onMalformed:  d.OnMalformed,
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
		readDone:     make(chan struct{}),
	}
	if c.writeTimeout == 0 {
		c.writeTimeout = DefaultWriteTimeout
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}

	go c.readLoop()

	ping := d.PingInterval
	if ping == 0 {
		ping = DefaultPingInterval
	}
	if ping > 0 {
		go c.keepAlive(ping)
	}

	c.logger.Info("stream", "url", d.URL)
	return c, nil
}

// Send writes one audio frame. It does not wait for any reply.
func (c *Channel) Send(frame pcm.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteJSON(audioMessage{Audio: frame.Bytes()}); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Events yields inbound events in arrival order. It is closed when the
// connection ends; Err then tells whether that was expected.
func (c *Channel) Events() <-chan Event { return c.events }

// Err reports why the connection ended, or nil while it is open or
// after a local Close.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Channel) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) readLoop() {
	defer close(c.readDone)
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.setErr(&TransportError{Op: "receive", Err: err})
			}
			return
		}

		ev, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping inbound message", "error", err, "bytes", len(data))
			if c.onMalformed != nil {
				c.onMalformed(data, err)
			}
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// Close sends a close frame, drops the connection and waits for the
// reader to finish. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		deadline := time.Now().Add(c.writeTimeout)
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			c.logger.Debug("close frame not sent", "error", werr)
		}
		if cerr := c.conn.Close(); cerr != nil {
			err = fmt.Errorf("close websocket: %w", cerr)
		}
		<-c.readDone
		c.logger.Info("stream closed")
	})
	return err
}
