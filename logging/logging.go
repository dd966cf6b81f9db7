package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 20
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// Setup configures the apex/log default logger. Console output is always text on
// stderr; when file is set, JSON lines are also written to a rotating log file.
// The returned closer flushes the file writer.
func Setup(level, file string) (io.Closer, error) {
	log.SetLevel(parseLevel(level))

	console := text.New(os.Stderr)
	file = strings.TrimSpace(file)
	if file == "" {
		log.SetHandler(console)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		log.SetHandler(console)
		return nopCloser{}, err
	}

	writer := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
	log.SetHandler(multi.New(console, json.New(writer)))
	return writer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(level string) log.Level {
	l, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return l
}
