package main

import (
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/spotit/internal/bridge"
	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/logging"
	"github.com/MeKo-Tech/spotit/internal/version"
)

// instance is created on the first ABI call.
var instance = sync.OnceValue(newBridge)

// newBridge installs logging and loads configuration. A configuration
// error is logged and the defaults are used instead.
func newBridge() *bridge.Bridge {
	logging.Install()

	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("failed to load configuration, using defaults", "error", err)
		defaults := config.DefaultConfig()
		cfg = &defaults
	}
	logging.SetMinLevel(cfg.Level())

	slog.Debug("spotit bridge initialized",
		"version", version.String(),
		"config", loader.ConfigFileUsed(),
		"busy_policy", cfg.BusyPolicy().String())
	return bridge.New(bridge.Options{Config: *cfg})
}

func main() {}
