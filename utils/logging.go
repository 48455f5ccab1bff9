package utils

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	slogmulti "github.com/samber/slog-multi"
)

// Run log vocabulary shared by every stage record.
const (
	LogTool = "RMCONTAM"

	StatusStarted   = "STARTED"
	StatusCompleted = "COMPLETED"
	StatusSkipped   = "SKIPPED"
	StatusFailed    = "FAILED"
	StatusPartial   = "PARTIAL"

	AllFiles = "ALL"
)

// OpenRunLog opens (appending) the JSON run log and returns a logger that
// writes every record to it and to stderr. The returned closer closes the file.
func OpenRunLog(path string, verbose bool) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening log file %s", path)
	}
	return NewLogger(f, os.Stderr, verbose), f, nil
}

// NewLogger fans records out to a JSON handler on jsonOut and a text handler
// on textOut. Debug records only reach the text handler when verbose is set.
func NewLogger(jsonOut, textOut io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(jsonOut, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(textOut, &slog.HandlerOptions{Level: level}),
	))
}

// OrDefault returns l, or the default logger when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Stage logs one stage transition in the run log format.
func Stage(logger *slog.Logger, program, replicate, file, status string, args ...any) {
	logger = OrDefault(logger)
	attrs := append([]any{"PROGRAM", program, "REPLICATE", replicate, "FILE", file, "STATUS", status}, args...)
	if strings.HasPrefix(status, StatusFailed) {
		logger.Error(LogTool, attrs...)
		return
	}
	logger.Info(LogTool, attrs...)
}

// LogEntry is one parsed record of a run log.
type LogEntry struct {
	Timestamp string `json:"time"`
	Level     string `json:"level"`
	Tool      string `json:"msg"`
	Program   string `json:"PROGRAM"`
	Replicate string `json:"REPLICATE"`
	File      string `json:"FILE"`
	Status    string `json:"STATUS"`
	Cmd       string `json:"CMD"`
}

// ParseLogFile reads a JSON run log. Lines that are not run log records are
// skipped; a missing file yields no entries.
func ParseLogFile(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "opening log file %s", path)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if e.Tool != LogTool || e.Program == "" {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, errors.Wrapf(err, "scanning log file %s", path)
	}
	return entries, nil
}

// StageHasCompleted reports whether the last record for program, replicate
// and file is a completion.
func StageHasCompleted(entries []LogEntry, program, replicate, file string) bool {
	completed := false
	for _, e := range entries {
		if e.Program != program || e.Replicate != replicate || e.File != file {
			continue
		}
		completed = e.Status == StatusCompleted
	}
	return completed
}
