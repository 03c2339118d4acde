package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Loggers are the prefixed loggers the CLI hands to each component.
type Loggers struct {
	Main    *log.Logger
	Capture *log.Logger
	Hear    *log.Logger
	Coach   *log.Logger
	HTTP    *log.Logger

	closer io.Closer
}

// NewLoggers writes to w with the terminal styling. While the live view
// owns the screen, w should be a file; see OpenLogFile.
func NewLoggers(w io.Writer, level log.Level) *Loggers {
	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           level,
	})
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))
	logger.SetStyles(styles)

	l := &Loggers{
		Main:    logger.WithPrefix("main"),
		Capture: logger.WithPrefix("mic"),
		Hear:    logger.WithPrefix("hear"),
		Coach:   logger.WithPrefix("coach"),
		HTTP:    logger.WithPrefix("http"),
	}
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		l.closer = c
	}
	return l
}

// OpenLogFile appends to path.
func OpenLogFile(path string, level log.Level) (*Loggers, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return NewLoggers(f, level), nil
}

func (l *Loggers) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
