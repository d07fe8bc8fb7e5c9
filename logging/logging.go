// Package logging builds the application logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFilename = "radio-tui.log"

// DefaultLogPath returns the log file location under the user cache
// directory
func DefaultLogPath() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}

	return filepath.Join(cacheDir, "radio-tui", logFilename)
}

// NewLogger creates a sugared logger. Verbose loggers use the development
// config at debug level; otherwise a production JSON logger at info level.
// When path is empty the logger writes to stderr, otherwise to path only so
// the terminal UI is left alone.
func NewLogger(verbose bool, path string) (*zap.SugaredLogger, error) {
	var loggerConfig zap.Config

	if verbose {
		loggerConfig = zap.NewDevelopmentConfig()
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		loggerConfig = zap.NewProductionConfig()
		loggerConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	loggerConfig.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		// colors would end up as escape codes in the file
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		loggerConfig.OutputPaths = []string{path}
		loggerConfig.ErrorOutputPaths = []string{path}
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create zap logger: %w", err)
	}

	return logger.Sugar(), nil
}
