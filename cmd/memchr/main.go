package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caihaoran-00/memchr/config"
	"github.com/caihaoran-00/memchr/internal/apperr"
	"github.com/caihaoran-00/memchr/internal/profile"
	"github.com/caihaoran-00/memchr/internal/version"
	"github.com/caihaoran-00/memchr/memory"
	"github.com/caihaoran-00/memchr/memory/llm"
	"github.com/caihaoran-00/memchr/server"
	"github.com/caihaoran-00/memchr/store"
	"github.com/caihaoran-00/memchr/store/db/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "memchr",
	Short: "A bounded, durable memory store for a conversational toy assistant.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: runServe,
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8765)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod", "dev", or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address to bind")
	rootCmd.PersistentFlags().Int("port", 8765, "port to listen on")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("dsn", "", "sqlite DSN, overrides the data-directory default")
	rootCmd.PersistentFlags().String("preset", "balanced", "config preset: minimal, balanced, or full_featured")
	rootCmd.PersistentFlags().String("llm-provider", "", "LLM provider: openai, zhipu, or mock")
	rootCmd.PersistentFlags().String("llm-model", "", "LLM model name")

	for _, flag := range []string{"mode", "addr", "port", "data", "dsn", "preset", "llm-provider", "llm-model"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	instanceProfile := &profile.Profile{
		Mode:         viper.GetString("mode"),
		Addr:         viper.GetString("addr"),
		Port:         viper.GetInt("port"),
		Data:         viper.GetString("data"),
		DSN:          viper.GetString("dsn"),
		ConfigPreset: viper.GetString("preset"),
		LLMProvider:  viper.GetString("llm-provider"),
		LLMModel:     viper.GetString("llm-model"),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitError(apperr.ConfigError(err))
	}

	cfg := buildConfig(instanceProfile)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitError(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := sqlite.Open(instanceProfile.DSN)
	if err != nil {
		slog.Error("failed to open database", "error", err, "dsn", instanceProfile.DSN)
		return exitError(apperr.StorageError(err, "Open"))
	}
	st := store.New(dbDriver)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to migrate", "error", err)
		return exitError(apperr.StorageError(err, "Migrate"))
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()

	llmClient, err := llm.New(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMMaxRetries, cfg.LLMTimeout)
	if err != nil {
		slog.Error("failed to build LLM client", "error", err)
		return exitError(err)
	}

	metrics := memory.NewPrometheusMetrics()
	manager, err := memory.New(cfg, st, llmClient, metrics, slog.Default())
	if err != nil {
		slog.Error("failed to build memory manager", "error", err)
		return exitError(err)
	}
	defer manager.Close()

	srv := server.New(manager, metrics, slog.Default())

	addr := fmt.Sprintf("%s:%d", instanceProfile.Addr, instanceProfile.Port)
	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- srv.Start(addr)
	}()

	printGreetings(instanceProfile, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, terminationSignals...)

	select {
	case <-sigCh:
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			return exitError(apperr.StorageError(err, "Shutdown"))
		}
		return nil
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			return exitError(apperr.StorageError(err, "Start"))
		}
		return nil
	}
}

// buildConfig starts from the preset named by instanceProfile.ConfigPreset
// and overlays the LLM fields read from flags/environment.
func buildConfig(p *profile.Profile) *config.Config {
	var cfg *config.Config
	switch p.ConfigPreset {
	case "minimal":
		cfg = config.NewMinimalConfig()
	case "full_featured":
		cfg = config.NewFullFeaturedConfig()
	default:
		cfg = config.NewBalancedConfig()
	}

	if p.LLMProvider != "" {
		cfg.LLMProvider = p.LLMProvider
	}
	if p.LLMModel != "" {
		cfg.LLMModel = p.LLMModel
	}
	cfg.LLMAPIKey = p.LLMAPIKey
	cfg.LLMBaseURL = p.LLMBaseURL
	if p.LLMTimeout > 0 {
		cfg.LLMTimeout = p.LLMTimeout
	}
	if p.LLMMaxRetries > 0 {
		cfg.LLMMaxRetries = p.LLMMaxRetries
	}
	return cfg
}

// exitCodeFor maps the module's typed error taxonomy onto process exit
// codes: config problems, storage problems, and LLM/schema problems each
// get their own code so operators can tell them apart from the shell.
func exitCodeFor(err error) int {
	switch {
	case apperr.Is(err, apperr.KindConfigError):
		return 2
	case apperr.Is(err, apperr.KindStorageError):
		return 3
	case apperr.Is(err, apperr.KindTransientLLMError), apperr.Is(err, apperr.KindSchemaError):
		return 4
	default:
		return 1
	}
}

// exitError is a *cobra.Command-friendly wrapper: cobra prints the error
// and exits 1 by default, so main() inspects the taxonomy itself and calls
// os.Exit with the documented code.
func exitError(err error) error {
	return exitCodeError{err: err, code: exitCodeFor(err)}
}

type exitCodeError struct {
	err  error
	code int
}

func (e exitCodeError) Error() string { return e.err.Error() }
func (e exitCodeError) Unwrap() error { return e.err }

func printGreetings(p *profile.Profile, cfg *config.Config) {
	fmt.Printf("memchr %s started\n", version.GetCurrentVersion(p.Mode))
	fmt.Printf("Mode: %s  Preset: %s  LLM: %s\n", p.Mode, p.ConfigPreset, cfg.LLMProvider)
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Listening on %s:%d\n", p.Addr, p.Port)
}

// isRunningAsSystemdService detects systemd-managed invocation, in which
// case environment configuration comes from the unit file, not a .env.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ece exitCodeError
		if errors.As(err, &ece) {
			slog.Error("memchr exiting", "error", ece.err)
			os.Exit(ece.code)
		}
		slog.Error("memchr exiting", "error", err)
		os.Exit(1)
	}
}
