package logger

import (
	"context"
	"os"
	"strings"
	"time"

	appCtx "github.com/adserve/adzone/internal/pkg/context"
	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Init must run before first use.
var Logger zerolog.Logger

// Init configures the root logger from LOG_LEVEL. Output is JSON on stdout;
// set LOG_PRETTY=1 for a human console writer in local dev.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var out = os.Stdout
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if os.Getenv("LOG_PRETTY") == "1" {
		cw := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		Logger = zerolog.New(cw).Level(level).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithCtx returns the root logger enriched with the request id, when the
// context carries one.
func WithCtx(ctx context.Context) *zerolog.Logger {
	if rid := appCtx.GetRequestID(ctx); rid != "" {
		l := Logger.With().Str("request_id", rid).Logger()
		return &l
	}
	return &Logger
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
