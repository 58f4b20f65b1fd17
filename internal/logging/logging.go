// Package logging builds the zerolog logger and adapts it to core.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the level and encoding. Format is "json" or "console".
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a zerolog logger writing to opts.Output (stderr by default).
func New(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					return strings.ToUpper(ll)
				}
				return "????"
			},
		}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q is not supported", opts.Format)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// Adapter implements the slog-shaped core.Logger over zerolog. Arguments
// are alternating keys and values; a trailing key without a value is
// logged under "!BADKEY".
type Adapter struct {
	log zerolog.Logger
}

// NewAdapter wraps log.
func NewAdapter(log zerolog.Logger) *Adapter { return &Adapter{log: log} }

// With returns an adapter whose entries carry the component field.
func (a *Adapter) With(component string) *Adapter {
	return &Adapter{log: a.log.With().Str("component", component).Logger()}
}

func (a *Adapter) Debug(msg string, args ...any) { emit(a.log.Debug(), msg, args) }
func (a *Adapter) Info(msg string, args ...any)  { emit(a.log.Info(), msg, args) }
func (a *Adapter) Warn(msg string, args ...any)  { emit(a.log.Warn(), msg, args) }
func (a *Adapter) Error(msg string, args ...any) { emit(a.log.Error(), msg, args) }

func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			ev = ev.Interface("!BADKEY", args[i])
			break
		}
		switch v := args[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case error:
			ev = ev.AnErr(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		case fmt.Stringer:
			ev = ev.Stringer(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
