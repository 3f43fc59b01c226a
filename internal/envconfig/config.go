// Package envconfig reads process-level settings from TFTS_* environment
// variables.
//
// Getters are evaluated on every call so tests can change the environment
// with t.Setenv. Malformed values log a warning and fall back to the default.
package envconfig

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

var (
	// Seed overrides the initializer seed used when a model config has none.
	Seed = Uint64("TFTS_SEED", 0)
	// NumThreads bounds the goroutines used by batched kernels.
	NumThreads = Uint("TFTS_NUM_THREADS", uint(runtime.NumCPU()))
	// StrictHistory turns the dilation warning into an error at load time.
	StrictHistory = Bool("TFTS_STRICT_HISTORY")
)

// LogLevel returns the log level for the application.
// Values are 0 or false for INFO (default), 1 or true for DEBUG.
// Negative integers raise the level further (-1 = WARN, -2 = ERROR).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("TFTS_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// NewLogger builds a text logger at LogLevel writing to w.
// Source file paths are shortened to their base name.
func NewLogger(w io.Writer) *slog.Logger {
	level := LogLevel()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// BoolWithDefault returns a getter that parses k as a bool.
// Any non-empty value that fails to parse counts as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter that parses k as a bool, defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// Uint returns a getter that parses key as an unsigned integer.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 returns a getter that parses key as a uint64.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// EnvVar describes one recognized variable and its current value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every recognized variable with its effective value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TFTS_DEBUG":          {"TFTS_DEBUG", LogLevel(), "Show additional debug information (e.g. TFTS_DEBUG=1)"},
		"TFTS_SEED":           {"TFTS_SEED", Seed(), "Default weight initialization seed"},
		"TFTS_NUM_THREADS":    {"TFTS_NUM_THREADS", NumThreads(), "Goroutines used by batched kernels (default: number of CPUs)"},
		"TFTS_STRICT_HISTORY": {"TFTS_STRICT_HISTORY", StrictHistory(), "Reject histories shorter than the largest dilation"},
	}
}

// Values returns every recognized variable rendered as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Var returns an environment variable stripped of leading and trailing quotes or spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
