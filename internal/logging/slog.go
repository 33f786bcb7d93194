// Package logging builds the slog pipeline shared by the trainer and the
// replay server: text to a session log file (or stdout), JSON to Graylog,
// and records bridged into the OTel log provider.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// stdout is swapped by tests
var stdout io.Writer = os.Stdout

// SlogManager owns the process logger and the OTel provider it flushes.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// Option adds an output or decoration to Setup.
type Option func(*setupOptions)

type setupOptions struct {
	graylog io.Writer
	context ContextProvider
	console bool
	scope   string
}

// WithGraylog also ships every record as JSON to w, usually a *gelf.Writer.
func WithGraylog(w io.Writer) Option {
	return func(o *setupOptions) { o.graylog = w }
}

// WithContext injects the attributes returned by p into every record.
func WithContext(p ContextProvider) Option {
	return func(o *setupOptions) { o.context = p }
}

// WithConsole mirrors records to stdout even when a file is given.
func WithConsole() Option {
	return func(o *setupOptions) { o.console = true }
}

// WithScope names the OTel instrumentation scope; the default is "racesim".
func WithScope(name string) Option {
	return func(o *setupOptions) { o.scope = name }
}

// NewGraylogWriter dials a GELF UDP endpoint.
func NewGraylogWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create graylog writer for %s: %w", addr, err)
	}
	return w, nil
}

// parseLevel accepts slog level names, offsets like "debug+2", and "warning".
// Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// utcTime renders the record time as RFC3339 UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup replaces the logger. Text records go to file, or to stdout when
// file is nil; provider, when non-nil, receives every record through the
// otelslog bridge.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Option) {
	so := setupOptions{scope: "racesim"}
	for _, opt := range opts {
		opt(&so)
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(level), ReplaceAttr: utcTime}

	var outputs []slog.Handler
	if file != nil {
		outputs = append(outputs, slog.NewTextHandler(file, handlerOpts))
	}
	if file == nil || so.console {
		outputs = append(outputs, slog.NewTextHandler(stdout, handlerOpts))
	}
	if so.graylog != nil {
		outputs = append(outputs, slog.NewJSONHandler(so.graylog, handlerOpts))
	}
	if provider != nil {
		outputs = append(outputs, otelslog.NewHandler(so.scope, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = NewFanout(outputs...)
	if so.context != nil {
		h = NewContextHandler(h, so.context)
	}
	m.logger = slog.New(h)
	m.logProvider = provider

	m.logger.Info("Logging initialized", "level", handlerOpts.Level.Level().String())
}

// Logger returns the configured logger, or slog.Default() before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes pending OTel log records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// LogFilePath returns <logsDir>/<name>.<yyyymmdd_hhmmss>.log.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")))
}
