// Package observability builds the engine's structured logger. Every
// stream carries generated credentials, and SRT publish URLs embed the
// passphrase as a query parameter, so the logger redacts sensitive fields
// and URL parameters before anything reaches the output writer.
package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/olbboy/streviz-engine/internal/config"
)

// urlSensitiveParamPattern matches sensitive query parameters embedded in
// logged URL strings, e.g. the passphrase in
// srt://host:8890?streamid=publish:x&passphrase=...&pbkeylen=32.
var urlSensitiveParamPattern = regexp.MustCompile(`(?i)(password|passphrase|secret|token|apikey|api_key|credential)=([^&\s"']+)`)

// GlobalLogLevel is the level every logger built here observes; it can be
// changed at runtime via SetLogLevel.
var GlobalLogLevel = &slog.LevelVar{}

// sensitiveFieldRedactor builds the masq redactor applied to every
// attribute: any field whose name marks it as credential material is
// replaced before the handler serializes it.
func sensitiveFieldRedactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("password"),
		masq.WithFieldName("Password"),
		masq.WithFieldName("passphrase"),
		masq.WithFieldName("Passphrase"),
		masq.WithFieldName("SRTPassphrase"),
		masq.WithFieldName("secret"),
		masq.WithFieldName("Secret"),
		masq.WithFieldName("token"),
		masq.WithFieldName("Token"),
		masq.WithFieldName("credential"),
		masq.WithFieldName("Credential"),
	)
}

// redactURLParams rewrites sensitive query parameter values to [REDACTED],
// leaving the parameter names in place so log lines stay diagnosable.
func redactURLParams(s string) string {
	return urlSensitiveParamPattern.ReplaceAllString(s, "$1=[REDACTED]")
}

// NewLogger builds the engine's logger writing to stderr.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stderr)
}

// NewLoggerWithWriter builds a logger against an arbitrary writer, which
// is what the redaction tests use to capture output.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	GlobalLogLevel.Set(parseLevel(cfg.Level))

	redactor := sensitiveFieldRedactor()
	opts := &slog.HandlerOptions{
		Level:     GlobalLogLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a = redactor(groups, a)

			if a.Value.Kind() == slog.KindString {
				if redacted := redactURLParams(a.Value.String()); redacted != a.Value.String() {
					a = slog.String(a.Key, redacted)
				}
			}

			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel changes the level of every logger built by this package at
// runtime, without rebuilding handlers.
func SetLogLevel(level string) {
	GlobalLogLevel.Set(parseLevel(level))
}

// GetLogLevel reports the current runtime level as a string.
func GetLogLevel() string {
	switch l := GlobalLogLevel.Level(); {
	case l <= slog.LevelDebug:
		return "debug"
	case l == slog.LevelInfo:
		return "info"
	case l == slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// WithComponent tags a logger with the subsystem it logs for, so scheduler
// and supervisor lines are distinguishable in mixed output.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithError attaches an error to the logger attributes; nil errors are a
// no-op so call sites don't need to branch.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}
