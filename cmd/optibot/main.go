package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/optibot/optibot/internal/bot"
	"github.com/optibot/optibot/internal/config"
	"github.com/optibot/optibot/internal/justify"
	"github.com/optibot/optibot/internal/nlu"
	"github.com/optibot/optibot/internal/notify"
	"github.com/optibot/optibot/internal/recommend"
	"github.com/optibot/optibot/internal/store"
	"github.com/optibot/optibot/internal/ticket"
	"github.com/optibot/optibot/internal/usage"
	"github.com/optibot/optibot/internal/workflow"
	"github.com/optibot/optibot/internal/workload"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(metricsv1beta1.AddToScheme(scheme))
}

func main() {
	var configFile string

	flag.StringVar(&configFile, "config", "/etc/optibot/config.yaml", "Path to config file")

	opts := zap.Options{Development: false}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		setupLog.Error(err, "Failed to load config file, falling back to defaults/env", "path", configFile)
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		setupLog.Error(err, "Invalid configuration", "configFile", configFile)
		os.Exit(1)
	}

	setupLog.Info("Starting optibot",
		"cluster", cfg.ClusterName,
		"port", cfg.Server.Port,
	)

	ctx := ctrl.SetupSignalHandler()

	// Open SQLite database (nil-safe: if it fails, outcomes are not persisted)
	var appDB *store.DB
	if cfg.Database.Path != "" {
		var dbErr error
		appDB, dbErr = store.Open(store.Config{
			Path:          cfg.Database.Path,
			RetentionDays: cfg.Database.RetentionDays,
		})
		if dbErr != nil {
			setupLog.Info("Database open failed, continuing without change history", "error", dbErr)
		} else {
			setupLog.Info("Database opened", "path", cfg.Database.Path)
		}
	}

	outcomes := store.NewOutcomeLog(appDB)
	go outcomes.Run(ctx)

	restCfg, err := ctrl.GetConfig()
	if err != nil {
		setupLog.Error(err, "Unable to load kubeconfig")
		os.Exit(1)
	}
	k8sClient, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		setupLog.Error(err, "Unable to create Kubernetes client")
		os.Exit(1)
	}

	gateway := workload.NewGateway(k8sClient)
	reader := usage.NewReader(k8sClient)

	justifier := justify.NewGenerator(justify.Config{
		Enabled: cfg.AI.Enabled,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	extractor := nlu.NewExtractor(nlu.Config{
		Enabled: cfg.AI.Enabled,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})

	issuer := ticket.NewIssuer(ticket.Config{
		BaseURL:  cfg.Jira.URL,
		Username: cfg.Jira.Username,
		APIToken: cfg.Jira.APIToken,
		Project:  cfg.Jira.Project,
		Timeout:  10 * time.Second,
	})

	slack := notify.NewClient(notify.Config{
		BotToken:       cfg.Slack.BotToken,
		DefaultChannel: cfg.Slack.NotificationChannel,
		Timeout:        10 * time.Second,
	})

	requests := workflow.NewRequestStore(cfg.Workflow.IdleTimeout)
	go requests.Run(ctx, cfg.Workflow.SweepInterval)

	orchestrator := workflow.New(requests, gateway, justifier, issuer, slack, outcomes)

	source := &recommend.StaticSource{Items: recommend.DefaultCandidates()}
	if cfg.Digest.Enabled {
		digest := recommend.NewDigest(source, slack, cfg.Slack.NotificationChannel, cfg.Digest.Schedule)
		if err := digest.Start(ctx); err != nil {
			setupLog.Error(err, "Unable to start recommendation digest", "schedule", cfg.Digest.Schedule)
			os.Exit(1)
		}
	}

	handlers := bot.NewHandlers(cfg, orchestrator, slack, extractor, reader, source, outcomes)
	srv := bot.NewServer(cfg, handlers)

	go func() {
		<-ctx.Done()
		setupLog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "HTTP server shutdown failed")
		}
	}()

	setupLog.Info("HTTP server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		setupLog.Error(err, "HTTP server failed")
		os.Exit(1)
	}

	outcomes.Wait()
	if appDB != nil {
		if err := appDB.Close(); err != nil {
			setupLog.Error(err, "Closing database failed")
		}
	}
}
