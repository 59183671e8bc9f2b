package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the level and output format. Service, when set, is
// stamped on every event.
type Config struct {
	Level   string
	Pretty  bool
	Service string
}

var global atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	global.Store(&l)
}

// Setup builds a logger writing to out and installs it as the one L
// returns. The relay logs to stdout; the terminal client logs to stderr
// because stdout carries the conversation.
func Setup(cfg Config, out io.Writer) zerolog.Logger {
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	lc := zerolog.New(out).Level(Level(cfg.Level)).With().Timestamp()
	if cfg.Service != "" {
		lc = lc.Str(FieldService, cfg.Service)
	}
	l := lc.Logger()
	global.Store(&l)
	return l
}

// L returns the logger installed by Setup.
func L() zerolog.Logger {
	return *global.Load()
}

// Level maps a configured level name to zerolog. Empty or unknown names
// mean info, and "off" disables logging.
func Level(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "off" {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
