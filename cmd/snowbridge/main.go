package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redcap-tools/snowbridge/internal/bridge"
	"github.com/redcap-tools/snowbridge/internal/web"
	"github.com/redcap-tools/snowbridge/pkg/config"
	"github.com/redcap-tools/snowbridge/pkg/logger"
	"github.com/redcap-tools/snowbridge/pkg/settings"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "snowbridge",
		Short: "Snowbridge - REDCap to Snowflake data bridge",
		Long: `Snowbridge moves full REDCap project exports into Snowflake tables.
It serves a small web UI for interactive fetch-and-load, and a headless
run command for the same pipeline from cron or CI.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Snowbridge v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fetch-and-load web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(configFile)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file (optional)")
	root.AddCommand(serveCmd)

	var tableName string
	var timeout time.Duration

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one headless fetch-and-load cycle",
		Long: `Run fetches the full REDCap export and loads it into Snowflake once,
then exits. Intended for cron or CI; a failed fetch or load exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(configFile)
			if err != nil {
				return err
			}
			return runOnce(cfg, tableName, timeout)
		},
	}
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file (optional)")
	runCmd.Flags().StringVarP(&tableName, "table", "t", "", "Destination table name (default: SNOWFLAKE_TABLE setting or REDCAP_EXPORT)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Cycle timeout")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadAppConfig reads the optional YAML config and initializes logging.
func loadAppConfig(path string) (*config.AppConfig, error) {
	cfg := config.NewAppConfig()
	if path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	encoding := "json"
	if cfg.Development {
		encoding = "console"
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development,
		Encoding:    encoding,
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// serve runs the web UI until interrupted.
func serve(cfg *config.AppConfig) error {
	defer func() { _ = logger.Sync() }()

	b := bridge.New(settings.Default(cfg.SecretsFile))
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           web.NewServer(b),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving UI", zap.String("listen", cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// runOnce performs one fetch-and-load cycle and exits.
func runOnce(cfg *config.AppConfig, tableName string, timeout time.Duration) error {
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b := bridge.New(settings.Default(cfg.SecretsFile))
	start := time.Now()
	if err := b.Run(ctx, tableName); err != nil {
		return err
	}

	logger.Info("cycle completed", zap.Duration("duration", time.Since(start)))
	return nil
}
