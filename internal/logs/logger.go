// Package logs builds the process logger.
package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

var level = new(slog.LevelVar)

// Options controls logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is "json" or "text". Empty means json.
	Format string
	// Journal also sends records to the systemd journal.
	Journal bool
}

// SetLevel changes the level of every logger built by New.
func SetLevel(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// New returns a logger writing to w and, when requested, the journal.
// A journal that cannot be reached is reported on w and skipped.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	if err := SetLevel(opts.Level); err != nil {
		return nil, err
	}

	var handlers []slog.Handler

	var local slog.Handler
	if w != nil {
		hopts := &slog.HandlerOptions{Level: level}
		switch opts.Format {
		case "", "json":
			local = slog.NewJSONHandler(w, hopts)
		case "text":
			local = slog.NewTextHandler(w, hopts)
		default:
			return nil, fmt.Errorf("unknown log format: %q", opts.Format)
		}
		handlers = append(handlers, local)
	}

	if opts.Journal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			if local != nil {
				record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
				record.Add("error", err)
				_ = local.Handle(context.Background(), record)
			}
		} else {
			handlers = append(handlers, journal)
		}
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// UnderSystemd reports whether the process runs inside a systemd service unit.
func UnderSystemd() bool {
	p, err := cgroupPath()
	if err != nil {
		return false
	}
	return strings.HasSuffix(path.Dir(p), ".service") || strings.HasSuffix(p, ".service")
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func cgroupPath() (string, error) {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) >= 3 {
		return parts[2], nil
	}
	return "", nil
}
