// setup.go - shared store and logger wiring for command handlers.

package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kittclouds/chatvault/internal/store"
	"github.com/kittclouds/chatvault/pkg/chat"
)

// openService opens the conversation store and wraps it in a chat
// service. The database path is taken from the --db flag, then the
// config file, then the default location, which is created on demand.
// The caller must Close the returned store.
func openService(cfg *Config, args Args) (*chat.Service, *store.SQLiteStore, error) {
	path := args.DBPath
	if path == "" {
		path = cfg.Database.Path
	}
	if path == "" {
		var err error
		path, err = DefaultDatabasePath()
		if err != nil {
			return nil, nil, err
		}
		if err := EnsureConfigDir(); err != nil {
			return nil, nil, err
		}
	}

	logger := newLogger(cfg, args)

	sc := store.DefaultConfig(path)
	sc.BusyTimeout = time.Duration(cfg.Database.BusyTimeoutMS) * time.Millisecond
	sc.Logger = logger

	st, err := store.OpenWithConfig(sc)
	if err != nil {
		return nil, nil, err
	}
	return chat.New(st, logger), st, nil
}

// newLogger builds the stderr logger. The configured level applies
// unless --verbose forces debug.
func newLogger(cfg *Config, args Args) zerolog.Logger {
	level := zerolog.WarnLevel
	if parsed, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		level = parsed
	}
	if args.Verbose {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
