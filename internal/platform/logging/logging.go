// Package logging builds the engine's zap logger and guards against
// sensitive values leaking into log output.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// redactedKeys are field names whose values are never logged verbatim.
var redactedKeys = map[string]struct{}{
	"email":    {},
	"phone":    {},
	"ssn":      {},
	"password": {},
	"token":    {},
	"secret":   {},
}

const redactedValue = "[REDACTED]"

// New returns a production JSON logger at the given level. An empty
// level means info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// Redact replaces values of sensitive fields. Callers pass every
// user-supplied field bag through it before logging.
func Redact(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, sensitive := redactedKeys[strings.ToLower(k)]; sensitive {
			out[k] = redactedValue
			continue
		}
		out[k] = v
	}
	return out
}

// RedactField returns a zap field with the value redacted when the key
// is sensitive.
func RedactField(key string, value string) zap.Field {
	if _, sensitive := redactedKeys[strings.ToLower(key)]; sensitive {
		return zap.String(key, redactedValue)
	}
	return zap.String(key, value)
}
