package logger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Fields map[string]any

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwordhash":  {},
	"password_hash": {},
	"pin":           {},
	"secret":        {},
}

var current atomic.Pointer[zap.Logger]

func init() {
	l, err := build("production", "")
	if err != nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// Init replaces the process logger with one built for environment and level.
// An empty level selects debug for local/development and info otherwise.
func Init(environment, level string) error {
	l, err := build(environment, level)
	if err != nil {
		return err
	}
	current.Store(l)
	return nil
}

// SetLogger swaps the process logger and returns a func restoring the
// previous one.
func SetLogger(l *zap.Logger) func() {
	if l == nil {
		l = zap.NewNop()
	}
	prev := current.Swap(l)
	return func() { current.Store(prev) }
}

func Sync() error {
	return current.Load().Sync()
}

func Info(message string, fields Fields) {
	current.Load().Info(message, zapFields(fields)...)
}

func Error(message string, err error, fields Fields) {
	base := Fields{}
	for k, v := range fields {
		base[k] = v
	}
	if err != nil {
		base["error"] = err.Error()
	}

	current.Load().Error(message, zapFields(base)...)
}

func SanitizePayload(payload any) any {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "<unavailable>"
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "<unavailable>"
	}

	return sanitizeValue(data)
}

func build(environment, level string) (*zap.Logger, error) {
	env := strings.ToLower(strings.TrimSpace(environment))

	var cfg zap.Config
	if env == "local" || env == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Encoding = "json"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}

	if strings.TrimSpace(level) != "" {
		var parsed zapcore.Level
		if err := parsed.Set(strings.TrimSpace(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

func zapFields(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	sanitized, ok := SanitizePayload(fields).(map[string]any)
	if !ok {
		return []zap.Field{zap.Any("fields", sanitized)}
	}

	keys := make([]string, 0, len(sanitized))
	for k := range sanitized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, sanitized[k]))
	}
	return out
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, inner := range typed {
			if isSensitiveKey(key) {
				out[key] = "******"
				continue
			}
			out[key] = sanitizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, sanitizeValue(item))
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "-", ""))
	_, ok := sensitiveKeys[normalized]
	return ok
}
