// Package logger builds the process logger. Logs always go to stderr, since
// stdout may be carrying a dump.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	File   string // appended to in addition to stderr
	Debug  bool   // forces debug level
	Output io.Writer
}

// ParseLevel maps a config level name to logrus, defaulting to warn.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

// New returns a configured logger and a closer for the log file, if any.
// A log file that cannot be opened is reported on the logger itself and
// otherwise ignored.
func New(opts Options) (*logrus.Logger, io.Closer) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	var closer io.Closer = nopCloser{}
	var fileErr error
	w := out
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fileErr = err
		} else {
			w = io.MultiWriter(out, f)
			closer = f
		}
	}
	l.SetOutput(w)

	// Colour codes would end up in the log file too.
	colour := isTerminal(out) && opts.File == ""
	if opts.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			ForceColors:     colour,
			DisableColors:   !colour,
			PadLevelText:    true,
		})
	}

	level := ParseLevel(opts.Level)
	if opts.Debug {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	if fileErr != nil {
		l.WithFields(logrus.Fields{"file": opts.File, "error": fileErr}).Warn("cannot open log file, logging to stderr only")
	}
	return l, closer
}

// Discard is a logger that writes nowhere.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewRunID returns a short identifier used to correlate the log lines and
// metrics of one invocation.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// CoreFields are attached to every entry of a run.
func CoreFields(runID, tool, pkg string) logrus.Fields {
	return logrus.Fields{
		"run_id":  runID,
		"tool":    tool,
		"package": pkg,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
