package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const (
	defaultTimeFormat = "15:04:05"
	logFileName       = "leadwatch.log"
	logFileMaxSize    = 20 * 1024 * 1024
	logFileBackups    = 3
)

var (
	loggerMu sync.Mutex
	logger   arbor.ILogger
)

// GetLogger returns the logger set up by InitLogger, or a console logger
// when nothing was initialized yet (tests, library use)
func GetLogger() arbor.ILogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = arbor.NewLogger().WithConsoleWriter(consoleWriter(defaultTimeFormat))
	}
	return logger
}

// InitLogger builds the process logger from [logging] and makes it the one
// GetLogger returns. The console is always written unless output is "file"
// only; a CLI that logs nowhere would hide login-required notices.
func InitLogger(config *Config) arbor.ILogger {
	timeFormat := config.Logging.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}

	toConsole, toFile := outputs(config.Logging.Output)
	l := arbor.NewLogger()

	if toFile {
		dir := LogDirectory(config)
		if err := os.MkdirAll(dir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "leadwatch: log directory %s unavailable, logging to console: %v\n", dir, err)
			toConsole = true
		} else {
			l = l.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(dir, logFileName),
				TimeFormat: timeFormat,
				MaxSize:    logFileMaxSize,
				MaxBackups: logFileBackups,
			})
		}
	}
	if toConsole || !toFile {
		l = l.WithConsoleWriter(consoleWriter(timeFormat))
	}
	l = l.WithLevelFromString(config.Logging.Level)

	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	return l
}

// LogDirectory is [logging] dir, or "logs" next to the credential store
func LogDirectory(config *Config) string {
	if config.Logging.Dir != "" {
		return config.Logging.Dir
	}
	return filepath.Join(filepath.Dir(filepath.Clean(config.Storage.Badger.Path)), "logs")
}

func outputs(names []string) (console, file bool) {
	for _, name := range names {
		switch name {
		case "file":
			file = true
		case "stdout", "console":
			console = true
		}
	}
	return console, file
}

func consoleWriter(timeFormat string) models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: timeFormat,
	}
}
