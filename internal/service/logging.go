package service

import (
	"context"

	"whatsdata/internal/privacy"
	"whatsdata/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey marks a request whose logs may carry unmasked identifiers
const VerboseContextKey ContextKey = "verbose"

// WithVerbose returns ctx carrying the verbose logging flag
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogFields adds the request id and masks WhatsApp identifiers unless the
// context is verbose
func LogFields(ctx context.Context, fields logrus.Fields) logrus.Fields {
	out := make(logrus.Fields, len(fields)+1)
	if id := tracing.GetRequestID(ctx); id != "" {
		out[LogFieldRequestID] = id
	}

	if IsVerboseLogging(ctx) {
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
	for k, v := range privacy.MaskFields(fields) {
		out[k] = v
	}
	return out
}
