// Package logging configures the process-wide logrus logger for mudra.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias so callers don't need to import logrus directly.
type Fields = logrus.Fields

// Options controls how the logger is built.
type Options struct {
	Level   string
	File    string // empty disables the rotating file sink
	NoColor bool
}

var (
	logger *logrus.Logger
	once   sync.Once
)

// benignMarkers are substrings of cross-context messages produced by browser
// extensions talking to the demo page. They carry no signal about the demo.
var benignMarkers = []string{
	"message channel",
	"Extension context",
}

// IsBenign reports whether msg is known browser-extension noise.
func IsBenign(msg string) bool {
	for _, m := range benignMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// noiseFilter drops entries whose message or error field is benign noise and
// delegates everything else to next.
type noiseFilter struct {
	next logrus.Formatter
}

func (f *noiseFilter) Format(entry *logrus.Entry) ([]byte, error) {
	if IsBenign(entry.Message) {
		return nil, nil
	}
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok && IsBenign(err.Error()) {
		return nil, nil
	}
	return f.next.Format(entry)
}

// New builds a logger from opts. Most code should use Get instead.
func New(opts Options) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(&noiseFilter{next: &formatter.Formatter{
		NoColors:        opts.NoColor,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
		},
	}})

	writers := []io.Writer{os.Stderr}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				LocalTime:  true,
				Compress:   true,
				MaxSize:    50,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}
	}
	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)

	return l
}

// Init replaces the process logger. Only the first call has an effect.
func Init(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = New(opts)
	})
	return logger
}

// Get returns the process logger, creating a default one on first use.
func Get() *logrus.Logger {
	return Init(Options{Level: "info"})
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Get().WithField("component", name)
}
