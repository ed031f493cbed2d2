// cmd/controlplane/main.go
// Entry point for the control-plane binary: loads configuration, wires the
// process-wide Server, and blocks until an interrupt signal or a fatal
// listener error. Grounded on cmd/flarego-gateway's main.go shape (flags ->
// config.Load -> logger init -> run loop -> signal-driven shutdown),
// repointed at this module's own config/Server types.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Voskan/flarego/internal/config"
	"github.com/Voskan/flarego/internal/logging"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional config file (yaml/json/toml) overlaying defaults and env vars")
		listenAddr = flag.String("listen", "", "Override listen_addr from config")
		logJSON    = flag.Bool("log-json", false, "Emit JSON logs instead of console-formatted ones")
	)
	flag.Parse()

	logger := newLogger(*logJSON)
	logging.Set(logger)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("controlplane: load config", zap.Error(err))
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	srv, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("controlplane: build server", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("controlplane: server exited", zap.Error(err))
	}
}

func newLogger(jsonOutput bool) *zap.Logger {
	var cfg zap.Config
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
