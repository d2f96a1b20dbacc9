package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FallSteph/Syllabuksu/internal/config"
	"github.com/FallSteph/Syllabuksu/model"
)

type loggerKey struct{}

// ServiceName is attached to every log line and to the tracing resource.
const ServiceName = "syllabuksu"

// NewLogger builds the process logger from cfg. Unknown levels fall back to
// info. Every entry carries the service name and build version.
//
// Levels:
//   - error: store or provider failures, panics, 5xx responses
//   - warn:  4xx responses, missing next reviewer, failed email delivery
//   - info:  requests, uploads, transitions, user administration
//   - debug: capability cache, redacted transition bodies
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoding := "json"
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if cfg.LogFormat == "console" {
		encoding = "console"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zcfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          encoding,
		EncoderConfig:     enc,
		DisableStacktrace: level > zapcore.DebugLevel,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		InitialFields: map[string]any{
			"service": ServiceName,
			"version": Version,
		},
	}
	return zcfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback when none is set.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, _ := ctx.Value(loggerKey{}).(*zap.Logger); l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger annotated with the caller's
// identity, so engine and dispatcher lines can be joined to the request.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil || logger == nil {
		return logger
	}
	return logger.With(identityFields(rctx)...)
}

func identityFields(rctx *model.RequestContext) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	fields = append(fields,
		zap.String("subject_id", rctx.SubjectID),
		zap.String("role", string(rctx.Role)),
	)
	if rctx.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", rctx.CorrelationID))
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	if rctx.SpanID != "" {
		fields = append(fields, zap.String("span_id", rctx.SpanID))
	}
	return fields
}

// redacted names keys whose values never reach the logs. Signatures are
// reviewer proof of approval and count as credentials here.
var redacted = map[string]struct{}{
	"authorization": {},
	"password":      {},
	"signature":     {},
	"token":         {},
	"api_key":       {},
	"hmac_secret":   {},
}

// Redact returns a copy of body with credential-like keys masked. Nested
// objects and arrays of objects are walked. extra adds keys for one call.
func Redact(body map[string]any, extra ...string) map[string]any {
	if body == nil {
		return nil
	}
	mask := func(k string) bool {
		if _, ok := redacted[k]; ok {
			return true
		}
		for _, e := range extra {
			if e == k {
				return true
			}
		}
		return false
	}

	out := make(map[string]any, len(body))
	for k, v := range body {
		if mask(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = redactValue(v, extra)
	}
	return out
}

func redactValue(v any, extra []string) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t, extra...)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = redactValue(item, extra)
		}
		return items
	default:
		return v
	}
}
