package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"podium/config"
	"podium/ui"
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(eegCmd)
	rootCmd.AddCommand(setupCmd)

	rootCmd.PersistentFlags().String("endpoint", "", "Speech service base URL")
	rootCmd.PersistentFlags().String("device", "", "Input device name")
	rootCmd.PersistentFlags().Int("sample-rate", 0, "Sample rate sent to the service")
	rootCmd.PersistentFlags().Int("buffer-size", 0, "Samples per audio frame")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-file", "", "Log file used while the live view is open")

	viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("sample_rate", rootCmd.PersistentFlags().Lookup("sample-rate"))
	viper.BindPFlag("buffer_size", rootCmd.PersistentFlags().Lookup("buffer-size"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	if err := config.Init(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "podium",
	Short: "Podium coaches live speech",
	Long: `Podium captures your microphone, streams it to a speech service and
shows the transcript and coaching feedback as you talk.`,
	SilenceUsage: true,
}

// loadConfig reads the merged configuration and opens the loggers. When
// tui is set the log goes to the log file so it does not fight the live
// view for the terminal.
func loadConfig(tui bool) (*config.Config, *ui.Loggers, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	if tui {
		logs, err := ui.OpenLogFile(cfg.LogFile, cfg.Level())
		if err != nil {
			return nil, nil, err
		}
		return cfg, logs, nil
	}
	return cfg, ui.NewLoggers(os.Stderr, cfg.Level()), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("podium", "error", err)
		os.Exit(1)
	}
}
