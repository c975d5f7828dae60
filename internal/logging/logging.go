// Package logging builds the service logger and the field helpers shared by
// every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry as the "service" field.
const ServiceName = "keyward"

// Config selects the level, the encoding and the destination of log output.
type Config struct {
	Level  string    // debug|info|warn|error
	Format string    // json|console
	Output io.Writer // defaults to stderr
}

// New builds a logger from cfg. Unknown levels and formats are errors.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	enc, err := encoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))).
		With(zap.String("service", ServiceName)), nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return level, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

func encoder(format string) (zapcore.Encoder, error) {
	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	switch strings.ToLower(format) {
	case "", "json":
		return zapcore.NewJSONEncoder(ec), nil
	case "console":
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec), nil
	default:
		return nil, fmt.Errorf("log format %q: want json or console", format)
	}
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv reads KEYWARD_LOG_LEVEL and KEYWARD_LOG_FORMAT.
func FromEnv() Config {
	return Config{
		Level:  os.Getenv("KEYWARD_LOG_LEVEL"),
		Format: os.Getenv("KEYWARD_LOG_FORMAT"),
	}
}

// Server fields.

func Port(port int) zap.Field { return zap.Int("port", port) }
func Addr(addr string) zap.Field { return zap.String("addr", addr) }
func Domain(domain string) zap.Field { return zap.String("domain", domain) }
func TLSMode(mode string) zap.Field { return zap.String("tls_mode", mode) }

// Validation fields.

func KeyID(id string) zap.Field { return zap.String("key_id", id) }
func KeyName(name string) zap.Field { return zap.String("key_name", name) }
func RemoteIP(ip string) zap.Field { return zap.String("remote_ip", ip) }
func Endpoint(endpoint string) zap.Field { return zap.String("endpoint", endpoint) }
func Outcome(outcome string) zap.Field { return zap.String("outcome", outcome) }
func Reason(reason string) zap.Field { return zap.String("reason", reason) }
