package app

import (
	"fmt"
	"os"
	"strings"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/logx"
)

// NewLogger picks the backend named by LOG_BACKEND.
func NewLogger(cfg *config.Config) (logx.Logger, error) {
	switch strings.ToLower(cfg.Log.Backend) {
	case "", "slog":
		return logx.NewSlogJSON(os.Stdout, cfg.Log.Level), nil
	case "zap":
		return logx.NewZap(cfg.Env == "production", cfg.Log.Level)
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Log.Backend)
	}
}
