package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/middleware"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Log stays silent until Init; packages log through it or Ctx.
var Log = zerolog.Nop()

// Init configures Log for the named process (composite-service or
// event-sink) writing to stdout.
func Init(service string) {
	InitWithWriter(os.Stdout, service)
}

// InitWithWriter reads LOG_LEVEL (default info) and LOG_FORMAT (json or
// console, default console) and tags every line with service and
// instance.
func InitWithWriter(w io.Writer, service string) {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if os.Getenv("LOG_FORMAT") != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp().Str("service", service)
	if host, err := os.Hostname(); err == nil {
		ctx = ctx.Str("instance", host)
	}

	Log = ctx.Logger()
	zlog.Logger = Log
}

// Ctx returns Log enriched with the request id and routing group of ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	reqID := middleware.GetRequestID(ctx)
	group := middleware.GetGroup(ctx)
	if reqID == "" && group == "" {
		return &Log
	}

	c := Log.With()
	if reqID != "" {
		c = c.Str("request_id", reqID)
	}
	if group != "" {
		c = c.Str("group", group)
	}
	l := c.Logger()
	return &l
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}
