// Package logging provides logrus-based logging setup for the LingoRelay
// server, including optional rotated file output and Gin middleware for
// request logging and panic recovery.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupBaseLogger configures the shared logrus logger with a text formatter
// and an initial level taken from the LOG_LEVEL environment variable
// (default info). Call once at process start before any logging happens.
func SetupBaseLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	log.SetOutput(os.Stderr)
}

// SetLevelFromName updates the logger level from a configuration value.
// Unknown names leave the level at info.
func SetLevelFromName(name string) {
	log.SetLevel(parseLevel(name))
}

// ConfigureFileOutput routes log output to a size-rotated file under dir in
// addition to stderr. The rotation policy keeps a handful of compressed
// backups so long-running servers do not fill the disk.
func ConfigureFileOutput(dir string) {
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "lingorelay.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

func parseLevel(name string) log.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "trace":
		return log.TraceLevel
	default:
		return log.InfoLevel
	}
}
