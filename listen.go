package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"podium/coach"
	"podium/config"
	"podium/feedback"
	"podium/metrics"
	"podium/session"
	"podium/snd"
	"podium/stt"
	"podium/transcript"
	"podium/ui"
	"podium/www"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream the microphone for live transcription and feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, session.Streaming)
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the microphone and transcribe the whole take when it stops",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, session.Batch)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{listenCmd, recordCmd} {
		cmd.Flags().Bool("tui", true, "Show the live view; otherwise log to the terminal")
		cmd.Flags().String("serve", "", "Also serve snapshots over HTTP on this address, e.g. :4444")
		cmd.Flags().Bool("gestures", false, "Poll the gesture tracker and add its alerts to the feedback")
		cmd.Flags().Bool("eeg", false, "Calibrate the EEG headset and add stress changes to the feedback")
		cmd.Flags().Duration("duration", 0, "Stop after this long (without the live view)")
	}
	recordCmd.Flags().String("format", "", "Recording container, wav or ogg")
	recordCmd.Flags().StringP("out", "o", "", "Keep the recording at this path")
}

// bindSessionFlags lets flags override the config file for this run.
func bindSessionFlags(cmd *cobra.Command) {
	viper.BindPFlag("http_addr", cmd.Flags().Lookup("serve"))
	viper.BindPFlag("gestures", cmd.Flags().Lookup("gestures"))
	viper.BindPFlag("eeg", cmd.Flags().Lookup("eeg"))
	if f := cmd.Flags().Lookup("format"); f != nil {
		viper.BindPFlag("format", f)
	}
}

func newController(cfg *config.Config, mode session.Mode, logs *ui.Loggers, out string, listeners ...session.Listener) (*session.Controller, error) {
	m := metrics.New()

	source := snd.NewSource(snd.NewPortAudio(logs.Capture), snd.Constraints{
		Device:           cfg.Device,
		SampleRate:       cfg.SampleRate,
		Channels:         1,
		FramesPerBuffer:  cfg.BlockSize(),
		EchoCancellation: cfg.EchoCancellation,
		NoiseSuppression: cfg.NoiseSuppression,
		AutoGainControl:  cfg.AutoGainControl,
	}, logs.Capture)

	opts := []session.Option{
		session.WithLogger(logs.Main),
		session.WithMetrics(m),
	}
	for _, l := range listeners {
		opts = append(opts, session.WithListener(l))
	}

	switch mode {
	case session.Streaming:
		url, err := cfg.StreamURL()
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithConnector(session.DialConnector(&stt.Dialer{
			URL:          url,
			PingInterval: cfg.PingInterval,
			WriteTimeout: cfg.WriteTimeout,
			Logger:       logs.Hear,
			OnMalformed: func(data []byte, err error) {
				m.MalformedEvents.Inc()
			},
		})))
	case session.Batch:
		url, err := cfg.BatchURL()
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithUploader(stt.NewBatchClient(url, logs.Hear)))
	}

	return session.New(session.Config{
		SampleRate:    cfg.SampleRate,
		BufferSize:    cfg.BufferSize,
		QueueDepth:    cfg.QueueDepth,
		Mode:          mode,
		Format:        session.Format(cfg.Format),
		RecordingPath: out,
	}, source, opts...)
}

// endListener records how the last session ended for headless runs.
type endListener struct {
	ended chan error
}

func (l *endListener) TranscriptChanged(transcript.Snapshot) {}
func (l *endListener) FeedbackAdded(feedback.Event)          {}
func (l *endListener) SessionEnded(err error) {
	select {
	case l.ended <- err:
	default:
	}
}

func runSession(cmd *cobra.Command, mode session.Mode) error {
	bindSessionFlags(cmd)
	tui, _ := cmd.Flags().GetBool("tui")
	duration, _ := cmd.Flags().GetDuration("duration")
	out, _ := cmd.Flags().GetString("out")

	cfg, logs, err := loadConfig(tui)
	if err != nil {
		return err
	}
	defer logs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := ui.NewBridge()
	ended := &endListener{ended: make(chan error, 1)}
	var listeners []session.Listener
	if tui {
		listeners = append(listeners, bridge)
	} else {
		listeners = append(listeners, ended)
	}

	ctrl, err := newController(cfg, mode, logs, out, listeners...)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	// Sessions outlive the signal so that a batch recording is still
	// uploaded by the Stop below.
	sessionCtx := context.WithoutCancel(ctx)

	var client *coach.Client
	if cfg.Gestures || cfg.EEG {
		client = coach.NewClient(cfg.Coach(), logs.Coach)
	}
	if cfg.EEG {
		if _, err := client.Calibrate(ctx); err != nil {
			return fmt.Errorf("eeg calibration: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTPAddr != "" {
		srv := www.NewServer(sessionCtx, ctrl, logs.HTTP)
		g.Go(func() error { return srv.Serve(gctx, cfg.HTTPAddr) })
	}
	if cfg.Gestures {
		g.Go(func() error {
			coach.WatchGestures(gctx, coach.NewPoller(client, cfg.GestureInterval), ctrl)
			return nil
		})
	}
	if cfg.EEG {
		g.Go(func() error {
			if err := coach.WatchEEG(gctx, client, cfg.EEGInterval, ctrl); err != nil {
				logs.Coach.Error("eeg detection stopped", "error", err)
			}
			return nil
		})
	}

	started := time.Now()
	if tui {
		err = ui.Run(gctx, sessionCtx, ctrl, bridge, true)
	} else {
		err = runHeadless(gctx, sessionCtx, ctrl, ended.ended, duration, logs)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if stopErr := ctrl.Stop(stopCtx); stopErr != nil && err == nil {
		err = stopErr
	}
	stop()
	if gerr := g.Wait(); gerr != nil && !errors.Is(gerr, context.Canceled) && err == nil {
		err = gerr
	}

	ui.WriteSummary(os.Stdout, ctrl.Transcript(), ctrl.Feedback(), started)
	return err
}

// runHeadless starts one session and waits for ctx, the duration or the
// session ending on its own.
func runHeadless(ctx, sessionCtx context.Context, ctrl *session.Controller, ended <-chan error, duration time.Duration, logs *ui.Loggers) error {
	if err := ctrl.Start(sessionCtx); err != nil {
		return err
	}
	logs.Main.Info("listening, press Ctrl+C to stop", "mode", ctrl.Mode(), "session", ctrl.SessionID())

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	case err := <-ended:
		return err
	}
	return nil
}
