package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mywio/pipeline-agent/pkg/config"
	"github.com/mywio/pipeline-agent/pkg/core"
	"github.com/mywio/pipeline-agent/pkg/masking"
	"github.com/mywio/pipeline-agent/pkg/metrics"
	"github.com/mywio/pipeline-agent/pkg/reconciler"
	envforwarder "github.com/mywio/pipeline-agent/plugins/env_forwarder"
	secretmanager "github.com/mywio/pipeline-agent/plugins/google_secret_manager"
	pushover "github.com/mywio/pipeline-agent/plugins/notifier_pushover"
	webhook "github.com/mywio/pipeline-agent/plugins/notifier_webhook"
	trigger "github.com/mywio/pipeline-agent/plugins/webhook_trigger"
)

func init() {
	core.RegisterPluginFactory(envforwarder.Name, envforwarder.New)
	core.RegisterPluginFactory(secretmanager.Name, secretmanager.New)
	core.RegisterPluginFactory(webhook.Name, webhook.New)
	core.RegisterPluginFactory(pushover.Name, pushover.New)
	core.RegisterPluginFactory(trigger.Name, trigger.New)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Every log line goes through the agent-wide masker.
	masker := masking.NewAuditedEngine(nil)
	logger := slog.New(masking.NewHandler(slog.NewJSONHandler(os.Stdout, nil), masker))
	masker.SetTrace(logger.With("module", "masking"))
	slog.SetDefault(logger)

	// Load Config
	cfgEnv := config.LoadConfig()
	cfgMapEnv := config.LoadConfigMapFromEnv()
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfgMapFile, err := config.LoadConfigFile(configPath)
	if err != nil {
		logger.Error("Failed to load config file", "path", configPath, "error", err)
	}
	cfgMap := config.MergeConfigMap(cfgMapFile, cfgMapEnv)
	cfg := config.MergeConfig(config.LoadConfigFromConfigMap(cfgMapFile), cfgEnv)

	if err := config.RegisterSecrets(cfg, cfgMap, masker); err != nil {
		logger.Warn("Masking config incomplete", "error", err)
	}

	// Validation
	if cfg.Token == "" || len(cfg.Users) == 0 || cfg.Topic == "" {
		logger.Error("Missing env vars: GITHUB_TOKEN, GITHUB_USERS, TOPIC_FILTER")
		os.Exit(1)
	}

	// Setup Module Manager
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfgMap["core"]["http_addr"] = cfg.HTTPAddr
	mgr := core.NewModuleManager(logger)
	mgr.SetMasker(masker)
	mgr.SetConfig(cfgMap)
	mgr.SetHTTPClient(&http.Client{Timeout: 15 * time.Second})

	plugins := cfg.Plugins
	if len(plugins) == 0 {
		plugins = core.PluginFactoryNames()
	}
	if err := mgr.LoadPlugins(plugins); err != nil {
		logger.Error("Failed to load plugins", "error", err)
	}

	// Core Reconciler
	mgr.Register(reconciler.NewReconciler(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Init(ctx); err != nil {
		logger.Error("Failed to initialize modules", "error", err)
		os.Exit(1)
	}
	metrics.RegisteredSecrets.Set(float64(masker.Len()))

	mgr.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	cancel()
	mgr.Stop(shutdownCtx)
	logger.Info("Shutdown complete")
}
