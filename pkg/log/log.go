// Package log provides package-level structured logging for the K-line
// service: a JSON-formatted logrus logger writing to a per-day file plus
// a set of component-scoped helpers used throughout the reader, backfill
// driver and vendor adapters. The file is chosen by date once, at
// initialisation; it is not rotated while the process runs, and the
// MaxSize, MaxBackups, MaxAge and Compress settings are not applied.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

// Config holds logging configuration.
type Config struct {
	Level      string `json:"level" yaml:"level"`
	LogDir     string `json:"log_dir" yaml:"log_dir"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // MB
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // backup files to keep
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // days
	Compress   bool   `json:"compress" yaml:"compress"`
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    100,
		MaxBackups: 30,
		MaxAge:     30,
		Compress:   true,
	}
}

// Init initializes the logger with default configuration.
func Init() {
	InitWithConfig(DefaultConfig())
}

// InitWithConfig initializes the logger with custom configuration.
func InitWithConfig(config *Config) {
	logger = logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		fmt.Printf("failed to create log directory: %v\n", err)
		logger.SetOutput(os.Stdout)
	} else {
		logFile := getDailyLogFile(config.LogDir)
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			fmt.Printf("failed to open log file: %v\n", err)
			logger.SetOutput(os.Stdout)
		} else {
			logger.SetOutput(file)
		}
	}

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	logger.WithFields(logrus.Fields{
		"component": "logger",
		"log_dir":   config.LogDir,
		"level":     config.Level,
	}).Info("logger initialized")
}

func getDailyLogFile(logDir string) string {
	today := time.Now().Format("2006-01-02")
	return filepath.Join(logDir, fmt.Sprintf("kline_%s.log", today))
}

func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Infof(msg, args...)
	}
}

func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Errorf(msg, args...)
	}
}

func Fatal(msg string, args ...interface{}) {
	if logger != nil {
		logger.Fatalf(msg, args...)
	}
}

func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warnf(msg, args...)
	}
}

func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debugf(msg, args...)
	}
}

func fields(component string, extra map[string]interface{}) logrus.Fields {
	f := logrus.Fields{"component": component}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

// ReaderInfo logs a read-through reader progress event.
func ReaderInfo(action, message string, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("reader", fields_)
		f["action"] = action
		logger.WithFields(f).Info(message)
	}
}

// ReaderWarn logs a read-through reader warning (e.g. snapped window
// inverted, empty bulk vendor result, failed intraday sweep).
func ReaderWarn(action, message string, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("reader", fields_)
		f["action"] = action
		logger.WithFields(f).Warn(message)
	}
}

// ReaderError logs a read-through reader failure.
func ReaderError(action, message string, err error, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("reader", fields_)
		f["action"] = action
		if err != nil {
			f["error"] = err.Error()
		}
		logger.WithFields(f).Error(message)
	}
}

// BackfillInfo logs a backfill driver progress event.
func BackfillInfo(symbol, action, message string, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("backfill", fields_)
		f["symbol"] = symbol
		f["action"] = action
		logger.WithFields(f).Info(message)
	}
}

// BackfillError logs a backfill driver per-symbol failure; the batch
// continues regardless.
func BackfillError(symbol, action, message string, err error, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("backfill", fields_)
		f["symbol"] = symbol
		f["action"] = action
		if err != nil {
			f["error"] = err.Error()
		}
		logger.WithFields(f).Error(message)
	}
}

// VendorInfo logs a vendor adapter event (login, logout, relogin).
func VendorInfo(vendor, action, message string, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("vendor", fields_)
		f["vendor"] = vendor
		f["action"] = action
		logger.WithFields(f).Info(message)
	}
}

// VendorWarn logs a vendor adapter non-fatal condition (session expiry
// before a relogin, unsupported combination).
func VendorWarn(vendor, action, message string, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("vendor", fields_)
		f["vendor"] = vendor
		f["action"] = action
		logger.WithFields(f).Warn(message)
	}
}

// VendorError logs a vendor adapter failure.
func VendorError(vendor, action, message string, err error, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("vendor", fields_)
		f["vendor"] = vendor
		f["action"] = action
		if err != nil {
			f["error"] = err.Error()
		}
		logger.WithFields(f).Error(message)
	}
}

// CalendarWarn logs the trading calendar year-range fallback signal.
func CalendarWarn(message string, fields_ map[string]interface{}) {
	if logger != nil {
		logger.WithFields(fields("calendar", fields_)).Warn(message)
	}
}

// RouterInfo logs an intraday router routing decision.
func RouterInfo(symbol, action, message string, fields_ map[string]interface{}) {
	if logger != nil {
		f := fields("router", fields_)
		f["symbol"] = symbol
		f["action"] = action
		logger.WithFields(f).Info(message)
	}
}
