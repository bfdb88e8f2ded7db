// Copyright 2025 Certen Protocol
//
// Thin structured-logging facade over CometBFT's logger, the same library
// the teacher wires its CometBFT engine through (cmtlog.NewTMLogger).

package obslog

import (
	"os"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Logger is the structured logger every package above the reducers takes
// as a dependency. The reducers themselves (internal/entity,
// internal/server) stay pure and never log.
type Logger = cmtlog.Logger

// New builds a logger writing to stdout, filtered to level ("debug",
// "info", "error"; anything else behaves as "info").
func New(level string) Logger {
	base := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	switch level {
	case "debug":
		return cmtlog.NewFilter(base, cmtlog.AllowDebug())
	case "error":
		return cmtlog.NewFilter(base, cmtlog.AllowError())
	default:
		return cmtlog.NewFilter(base, cmtlog.AllowInfo())
	}
}

// Component returns a child logger tagged with a "module" key, matching
// the teacher's `tmLogger.With("module", "cometbft")` convention.
func Component(l Logger, name string) Logger {
	return l.With("module", name)
}

// Nop returns a logger that discards everything, for tests and library
// call sites with no configured logger.
func Nop() Logger {
	return cmtlog.NewNopLogger()
}
