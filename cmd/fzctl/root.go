// cmd/fzctl/root.go
// Root command for the `fzctl` operator CLI, the control-plane analogue of
// the teacher's cmd/flarego. Same wiring shape (persistent flags, idempotent
// logger init, cobra.OnInitialize for config search), repointed at a running
// control-plane's debug HTTP surface instead of an in-process agent.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/pkg/version"
)

var (
	cfgFile      string
	logJSON      bool
	controlPlane string

	rootCmd = &cobra.Command{
		Use:   "fzctl",
		Short: "fzctl – zero-trust control-plane operator CLI",
		Long:  `fzctl inspects and drives a running flarego control-plane: recording/replaying wire traffic, tailing live presence and cache events, and listing loaded plugins.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logging.Initialised() {
				return nil
			}
			return initLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file (YAML/TOML/JSON)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Enable JSON log output (default is human-friendly console)")
	rootCmd.PersistentFlags().StringVar(&controlPlane, "addr", "http://localhost:8443", "Control-plane debug HTTP base address")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newPluginCmd())
}

// Execute is called by main.main() and exits the process non-zero on error,
// fixing the teacher's cmd/flarego/main.go, which called Execute() expecting
// an error return it never declared.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "fzctl"))
		}
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("FZCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Sugar().Infof("using config file: %s", viper.ConfigFileUsed())
	}
}

func initLogger() error {
	cfg := zap.NewDevelopmentConfig()
	if logJSON {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	logging.Set(logger)
	logging.Sugar().Infow("fzctl starting", "go_version", runtime.Version(), "version", version.String())
	return nil
}
