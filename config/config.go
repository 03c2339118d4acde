package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"podium/ogg"
	"podium/pcm"
	"podium/stt"
)

type Config struct {
	Endpoint   string `mapstructure:"endpoint"`
	StreamPath string `mapstructure:"stream_path"`
	BatchPath  string `mapstructure:"batch_path"`

	Device           string `mapstructure:"device"`
	SampleRate       int    `mapstructure:"sample_rate"`
	BufferSize       int    `mapstructure:"buffer_size"`
	QueueDepth       int    `mapstructure:"queue_depth"`
	EchoCancellation bool   `mapstructure:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression"`
	AutoGainControl  bool   `mapstructure:"auto_gain_control"`

	Format string `mapstructure:"format"`

	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	CoachEndpoint   string        `mapstructure:"coach_endpoint"`
	Gestures        bool          `mapstructure:"gestures"`
	EEG             bool          `mapstructure:"eeg"`
	GestureInterval time.Duration `mapstructure:"gesture_interval"`
	EEGInterval     time.Duration `mapstructure:"eeg_interval"`

	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// SetDefaults registers every key so that environment variables and
// Unmarshal see it even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "http://localhost:8000")
	v.SetDefault("stream_path", "/stream_audio")
	v.SetDefault("batch_path", "/client_audio")
	v.SetDefault("device", "")
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("buffer_size", 4096)
	v.SetDefault("queue_depth", 32)
	v.SetDefault("echo_cancellation", true)
	v.SetDefault("noise_suppression", true)
	v.SetDefault("auto_gain_control", true)
	v.SetDefault("format", "wav")
	v.SetDefault("ping_interval", stt.DefaultPingInterval)
	v.SetDefault("write_timeout", stt.DefaultWriteTimeout)
	v.SetDefault("coach_endpoint", "")
	v.SetDefault("gestures", false)
	v.SetDefault("eeg", false)
	v.SetDefault("gesture_interval", 2500*time.Millisecond)
	v.SetDefault("eeg_interval", 4*time.Second)
	v.SetDefault("http_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "podium.log")
}

// Init points v at config.yaml in the working directory or
// ~/.podium, and at PODIUM_* environment variables. A .env file in the
// working directory is loaded first.
func Init(v *viper.Viper) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.podium")
	v.SetEnvPrefix("podium")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("endpoint %q is not an absolute URL", c.Endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if c.CoachEndpoint != "" {
		if u, err := url.Parse(c.CoachEndpoint); err != nil || u.Host == "" {
			return fmt.Errorf("coach_endpoint %q is not an absolute URL", c.CoachEndpoint)
		}
	}
	if c.SampleRate < 8000 || c.SampleRate > 96000 {
		return fmt.Errorf("sample_rate %d out of range 8000-96000", c.SampleRate)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", c.QueueDepth)
	}
	switch c.Format {
	case "wav":
	case "ogg":
		if !ogg.SupportedRate(c.SampleRate) {
			return fmt.Errorf("format ogg cannot encode at %d Hz", c.SampleRate)
		}
	default:
		return fmt.Errorf("format must be wav or ogg, got %q", c.Format)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// BlockSize is the buffer size rounded to one the pipeline accepts.
func (c *Config) BlockSize() int { return pcm.ValidBufferSize(c.BufferSize) }

func (c *Config) StreamURL() (string, error) {
	return stt.StreamURL(c.Endpoint, c.StreamPath)
}

func (c *Config) BatchURL() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", err
	}
	return u.JoinPath(c.BatchPath).String(), nil
}

// Coach is the base URL of the gesture and EEG services, which default
// to the transcription endpoint.
func (c *Config) Coach() string {
	if c.CoachEndpoint != "" {
		return c.CoachEndpoint
	}
	return c.Endpoint
}

func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
