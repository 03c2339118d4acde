package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"podium/coach"
	"podium/setup"
	"podium/snd"
	"podium/stt"
	"podium/ui"
	"podium/wav"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Upload an existing recording and print its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices",
	RunE:  runDevices,
}

var eegCmd = &cobra.Command{
	Use:   "eeg",
	Short: "Calibrate the EEG headset and print stress readings",
	RunE:  runEEG,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write config.yaml interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The current file may be the thing being fixed, so it is not
		// validated here.
		logs := ui.NewLoggers(os.Stderr, log.InfoLevel)
		return setup.Run(viper.GetViper(), logs.Main)
	},
}

func init() {
	eegCmd.Flags().Duration("interval", 0, "Time between readings")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, logs, err := loadConfig(false)
	if err != nil {
		return err
	}
	path := args[0]

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		info, err := wav.Inspect(path)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", path, err)
		}
		logs.Main.Info(
			"uploading",
			"file", path,
			"rate", info.SampleRate,
			"channels", info.Channels,
			"seconds", fmt.Sprintf("%.1f", info.Seconds()),
		)
	}

	url, err := cfg.BatchURL()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	text, err := stt.NewBatchClient(url, logs.Hear).Transcribe(ctx, path)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := snd.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No input devices found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Host API", "Channels", "Default Rate", "Default"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, d := range devices {
		mark := ""
		if d.Default {
			mark = "*"
		}
		table.Append([]string{
			d.Name,
			d.HostAPI,
			fmt.Sprintf("%d", d.Channels),
			fmt.Sprintf("%.0f Hz", d.DefaultRate),
			mark,
		})
	}

	table.Render()
	return nil
}

func runEEG(cmd *cobra.Command, args []string) error {
	cfg, logs, err := loadConfig(false)
	if err != nil {
		return err
	}
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval == 0 {
		interval = cfg.EEGInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := coach.NewClient(cfg.Coach(), logs.Coach)
	logs.Main.Info("Connecting Muse device…")
	base, err := client.Calibrate(ctx)
	if err != nil {
		return err
	}
	fmt.Println(base.Advice("Baseline captured. Ready for emotion detection."))

	return client.DetectLoop(ctx, interval, func(d coach.Digest) {
		fmt.Printf("%s  %-15s %s\n", d.Timestamp.Format(time.TimeOnly), d.Label(), d.Message)
	})
}
