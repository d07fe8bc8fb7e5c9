package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"radio-tui/logging"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Config file path (default: user config dir)")
	volumePercent := pflag.Int("volume", -1, "Initial volume (0-100), -1 means use saved config")
	daemon := pflag.BoolP("daemon", "d", false, "Run without the terminal UI, controlled over HTTP")
	pflag.Int("port", 8080, "Control API port (daemon mode only)")
	pflag.String("stations", "", "Local station catalog (YAML), skips the online directory")
	noTray := pflag.Bool("no-tray", false, "Don't show a tray icon")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose logging")
	pflag.Parse()

	// the terminal belongs to the UI, so only the daemon logs to stderr
	logPath := ""
	if !*daemon {
		logPath = logging.DefaultLogPath()
	}

	logger, err := logging.NewLogger(*verbose, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	a, err := newApp(logger, appOptions{
		configPath:    *configPath,
		volumePercent: *volumePercent,
		daemon:        *daemon,
		noTray:        *noTray,
		flags:         pflag.CommandLine,
	})
	if err != nil {
		named.Errorw("Failed to create app", "error", err)
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}

	if err := a.run(); err != nil {
		named.Errorw("App exited with error", "error", err)
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}
