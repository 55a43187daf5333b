// Package log provides logging utilities.
package log

//go:generate go tool errtrace -w .

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/golang-cz/devslog"
	"github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
)

const redacted = "*****"

var newHandler = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
	slogformatter.FormatByKey("password", func(v slog.Value) slog.Value {
		if v.Kind() == slog.KindString && v.String() == "" {
			return v
		}
		return slog.StringValue(redacted)
	}),
	slogformatter.FormatByType(func(d time.Duration) slog.Value {
		return slog.StringValue(d.String())
	}),
	slogformatter.FormatByType(func(st engine.CallState) slog.Value {
		return slog.StringValue(st.String())
	}),
	slogformatter.FormatByType(func(c engine.Call) slog.Value {
		return slog.GroupValue(
			slog.String("id", c.ID()),
			slog.String("remote", c.RemoteURI()),
		)
	}),
)

// Dev is a verbose logger for local debugging.
var Dev = slog.New(newHandler(
	devslog.NewHandler(os.Stdout, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug},
		SortKeys:       true,
		TimeFormat:     time.RFC3339Nano,
	}),
))

// Def is a default logger.
var Def = slog.New(newHandler(
	console.NewHandler(os.Stdout, &console.HandlerOptions{
		AddSource:  true,
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339Nano,
	}),
))

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (noopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h noopHandler) WithGroup(string) slog.Handler { return h }

// Noop is a noop logger.
var Noop = slog.New(noopHandler{})

var def atomic.Pointer[slog.Logger]

func init() {
	def.Store(Def)
}

// Default returns the logger used by components created without an explicit one.
func Default() *slog.Logger { return def.Load() }

// SetDefault replaces the logger returned by [Default].
func SetDefault(l *slog.Logger) {
	if l == nil {
		l = Noop
	}
	def.Store(l)
}

// New builds a logger writing to w.
// Format is one of "console", "dev", "json" or "text"; level is a [slog.Level] name.
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("log level %q: %v", level, err))
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "console":
		h = console.NewHandler(w, &console.HandlerOptions{
			Level:      lvl,
			TimeFormat: time.RFC3339Nano,
		})
	case "dev":
		h = devslog.NewHandler(w, &devslog.Options{
			HandlerOptions: &slog.HandlerOptions{AddSource: true, Level: lvl},
			SortKeys:       true,
			TimeFormat:     time.RFC3339Nano,
		})
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	case "text":
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("unsupported log format %q", format))
	}
	return slog.New(newHandler(h)), nil
}
