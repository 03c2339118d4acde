// Package setup asks for the settings a first run needs and writes them
// to config.yaml.
package setup

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"podium/snd"
)

type Answers struct {
	Endpoint   string
	Device     string
	Format     string
	SampleRate string
	Gestures   bool
}

// Current reads the answers already configured in v, so the form opens
// with them filled in.
func Current(v *viper.Viper) Answers {
	return Answers{
		Endpoint:   v.GetString("endpoint"),
		Device:     v.GetString("device"),
		Format:     v.GetString("format"),
		SampleRate: strconv.Itoa(v.GetInt("sample_rate")),
		Gestures:   v.GetBool("gestures"),
	}
}

func validateEndpoint(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return errors.New("enter an absolute URL such as http://localhost:8000")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("use http or https")
	}
	return nil
}

func validateRate(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 8000 || n > 96000 {
		return errors.New("enter a rate between 8000 and 96000")
	}
	return nil
}

func deviceOptions(devices []snd.DeviceInfo) []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("System default", "")}
	for _, d := range devices {
		label := fmt.Sprintf("%s (%s, %.0f Hz)", d.Name, d.HostAPI, d.DefaultRate)
		if d.Default {
			label += " *"
		}
		opts = append(opts, huh.NewOption(label, d.Name))
	}
	return opts
}

// Form builds the setup form around a.
func Form(a *Answers, devices []snd.DeviceInfo) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Transcription server").
				Description("Base URL of the speech service").
				Validate(validateEndpoint).
				Value(&a.Endpoint),
			huh.NewSelect[string]().
				Title("Microphone").
				Options(deviceOptions(devices)...).
				Value(&a.Device),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recording format for batch mode").
				Options(
					huh.NewOption("WAV (uncompressed)", "wav"),
					huh.NewOption("Ogg/Opus (compressed)", "ogg"),
				).
				Value(&a.Format),
			huh.NewInput().
				Title("Sample rate").
				Validate(validateRate).
				Value(&a.SampleRate),
			huh.NewConfirm().
				Title("Poll the gesture tracker during sessions?").
				Value(&a.Gestures),
		),
	)
}

// Apply stores a in v.
func Apply(v *viper.Viper, a Answers) error {
	if err := validateEndpoint(a.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if err := validateRate(a.SampleRate); err != nil {
		return fmt.Errorf("sample rate: %w", err)
	}
	rate, _ := strconv.Atoi(a.SampleRate)

	v.Set("endpoint", a.Endpoint)
	v.Set("device", a.Device)
	v.Set("format", a.Format)
	v.Set("sample_rate", rate)
	v.Set("gestures", a.Gestures)
	return nil
}

// Save writes v to the file it was read from, or to config.yaml in dir
// when there was none.
func Save(v *viper.Viper, dir string) (string, error) {
	if path := v.ConfigFileUsed(); path != "" {
		return path, v.WriteConfig()
	}
	path := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", err
	}
	return path, nil
}

func Run(v *viper.Viper, logger *log.Logger) error {
	logger.Info("Starting podium setup...")

	devices, err := snd.ListDevices()
	if err != nil {
		logger.Warn("could not list microphones", "error", err)
	}

	a := Current(v)
	if err := Form(&a, devices).Run(); err != nil {
		return fmt.Errorf("setup form: %w", err)
	}
	if err := Apply(v, a); err != nil {
		return err
	}

	path, err := Save(v, ".")
	if err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	logger.Info("Setup completed successfully!", "config", path)
	return nil
}
