// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/config"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// keep 1 in 100 debug/info lines; warnings and errors always pass
		sampled := base.Sample(zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: 100},
			InfoSampler:  &zerolog.BasicSampler{N: 100},
		})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID   ctxKey = "trace_id"
	ctxUserID    ctxKey = "user_id"
	ctxTgID      ctxKey = "tg_id"
	ctxInvoiceID ctxKey = "invoice_id"
)

// With attaches the context fields (trace_id, user_id, tg_id, invoice_id)
// present in ctx to a child of base.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		l = l.Str("user_id", v)
	}
	if v, ok := ctx.Value(ctxTgID).(int64); ok {
		l = l.Int64("tg_id", v)
	}
	if v, ok := ctx.Value(ctxInvoiceID).(int64); ok {
		l = l.Int64("invoice_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "PaymentUC.ConfirmCallback")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides secrets and user text when not in dev; keep short/preview.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}
func WithTgID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxTgID, id)
}
func WithInvoiceID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxInvoiceID, id)
}

// TraceID returns the trace id stored in ctx, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
