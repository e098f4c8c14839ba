// Package logging backs deck.Logger and deck.ChangeEmitter with logrus.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-deck-export/deck"
	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Logger adapts a logrus entry to deck.Logger.
type Logger struct {
	entry *logrus.Entry
}

var _ deck.Logger = (*Logger)(nil)

// New builds a logger. Format is "text" or "json".
func New(opts Options) (*Logger, error) {
	base := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	base.SetLevel(lvl)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q must be text or json", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	return &Logger{entry: logrus.NewEntry(base)}, nil
}

// With returns a logger that adds key=value to every line.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Entry exposes the underlying logrus entry.
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Events returns an emitter that logs lifecycle events as structured lines.
// Failures log at error level, skipped slides at warn, everything else at info.
func (l *Logger) Events() deck.ChangeEmitter {
	return deck.ChangeEmitterFunc(func(ctx context.Context, evt deck.ChangeEvent) error {
		fields := logrus.Fields{
			"event":   evt.Name,
			"surface": evt.SurfaceID,
			"state":   string(evt.State),
		}
		if evt.Title != "" {
			fields["title"] = evt.Title
		}
		if evt.Slide >= 0 {
			fields["slide"] = evt.Slide
		}
		for k, v := range evt.Metadata {
			fields[k] = v
		}
		entry := l.entry.WithContext(ctx).WithFields(fields)
		if !evt.Timestamp.IsZero() {
			entry = entry.WithTime(evt.Timestamp)
		}

		switch evt.Name {
		case "export.failed":
			entry.Error("export event")
		case "export.slide_skipped":
			entry.Warn("export event")
		default:
			entry.Info("export event")
		}
		return nil
	})
}
