package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/verihuman/verihuman-api/internal/config"
)

// SetupLogger configures a JSON slog logger with service and env fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel(cfg)})
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}

// logLevel resolves LOG_LEVEL, falling back to debug in dev and info elsewhere.
// Unknown level names fall back the same way.
func logLevel(cfg config.Config) slog.Level {
	if name := strings.TrimSpace(cfg.LogLevel); name != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(name)); err == nil {
			return lvl
		}
	}
	if cfg.IsDev() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
