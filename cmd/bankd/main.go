package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bankchain/cmd/internal/passphrase"
	"bankchain/config"
	"bankchain/core"
	"bankchain/core/events"
	"bankchain/core/state"
	"bankchain/native/bank"
	"bankchain/observability"
	"bankchain/observability/logging"
	telemetry "bankchain/observability/otel"
	"bankchain/rpc"
	"bankchain/storage"
)

const adminPassEnv = "BANK_ADMIN_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	policyFlag := flag.String("policy", "", "Path to a deposit policy YAML file (overrides PolicyFile)")
	flag.Parse()

	passSource := passphrase.NewSource(adminPassEnv, "admin")
	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(cfg.Env)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("BANK_ENV"))
	}
	logger := logging.SetupWithOptions("bankd", env, logging.Options{
		File:  cfg.LogFile,
		Level: logging.ParseLevel(cfg.LogLevel),
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.TelemetryConfig("bankd"))
	if err != nil {
		logger.Error("Failed to init telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	admin, err := cfg.Admin()
	if err != nil {
		panic(fmt.Sprintf("Failed to resolve admin: %v", err))
	}

	policy, err := loadPolicy(*policyFlag, cfg.PolicyFile)
	if err != nil {
		logger.Error("Failed to load deposit policy", slog.Any("error", err))
		os.Exit(1)
	}

	st := state.NewManager(db)
	base := bank.New(st,
		bank.WithPauses(cfg.PauseView()),
		bank.WithLogger(logger),
		bank.WithMetrics(observability.Bank()),
	)
	svc := bank.NewPolicyBank(base, policy)
	executor := core.NewExecutor(cfg.NetworkName, st, svc, []events.Emitter{observability.Events()},
		core.WithQuota(policy.Quota),
		core.WithExecutorLogger(logger),
	)
	if err := base.Genesis(admin); err != nil {
		logger.Error("Failed to initialise admin", slog.Any("error", err), slog.String("admin", admin.Hex()))
		os.Exit(1)
	}

	server := rpc.NewServer(executor, rpc.ServerConfig{
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("bankd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("network", cfg.NetworkName),
			slog.String("backend", cfg.Backend))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func loadPolicy(flagPath, configPath string) (bank.Policy, error) {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = strings.TrimSpace(configPath)
	}
	if path == "" {
		return bank.DefaultPolicy(), nil
	}
	return bank.LoadPolicy(path)
}
