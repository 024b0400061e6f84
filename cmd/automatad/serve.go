package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danyelangel/automata/internal/agent/controller"
	"github.com/danyelangel/automata/internal/config"
	"github.com/danyelangel/automata/internal/llm"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/notify"
	"github.com/danyelangel/automata/internal/runner"
	"github.com/danyelangel/automata/internal/sanitizer"
	"github.com/danyelangel/automata/internal/scheduler"
	"github.com/danyelangel/automata/internal/store"
	"github.com/danyelangel/automata/internal/tools"
	"github.com/danyelangel/automata/internal/tools/fetch"
	"github.com/danyelangel/automata/internal/track"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the automation daemon (main command)",
	Long: `Start the automation daemon with the specified configuration.
This initializes all components (store, tool registry, model provider,
scheduler, agent runner) and handles graceful shutdown.`,
	Run: serveHandler,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to config file (default ./config.toml)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Override the configured log level")
}

func serveHandler(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	configPath := serveConfigPath
	if configPath == "" {
		configPath = "./config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Printf("❌ Configuration validation failed:\n")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("❌ Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	log.Info("🚀 Starting Automata",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "llm_provider", Value: cfg.LLM.Provider},
		logger.Field{Key: "cadence", Value: cfg.Scheduler.Cadence})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	st, err := store.Open(ctx, cfg.Store.StateDir, log)
	if err != nil {
		log.Error("Failed to open store", err)
		os.Exit(1)
	}
	defer st.Close()

	registry := tools.NewRegistry()
	if err := registry.Register(fetch.New(fetch.Config{}, log)); err != nil {
		log.Error("Failed to register web_fetch tool", err)
		os.Exit(1)
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "mock":
		provider = llm.NewMockProvider()
	default:
		provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:         cfg.LLM.APIKey,
			Endpoint:       cfg.LLM.Endpoint,
			Model:          cfg.LLM.Model,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		}, log)
	}

	var sink track.Sink = track.Noop{}
	if cfg.Metrics.Enabled {
		promSink, err := track.NewPrometheus(prometheus.DefaultRegisterer)
		if err != nil {
			log.Error("Failed to set up metrics", err)
			os.Exit(1)
		}
		sink = promSink

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			log.Info("📈 Metrics listening", logger.Field{Key: "addr", Value: cfg.Metrics.ListenAddr})
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server stopped", err)
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	var notifier runner.Notifier
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		}, log)
		if err != nil {
			log.Error("Failed to set up telegram notifier", err)
			os.Exit(1)
		}
		notifier = tg
	}

	validator := sanitizer.NewValidator(sanitizer.Config{})
	ctrl := controller.New(provider, registry, validator, log, controller.Config{
		MessagePauseThreshold: cfg.Agent.MessagePauseThreshold,
		HumanInLoopTools:      cfg.Agent.HumanInLoopTools,
		Temperature:           cfg.Agent.Temperature,
		MaxTokens:             cfg.Agent.MaxTokens,
	})

	run := runner.New(st, ctrl, notifier, sink, log, runner.Config{
		MaxWorkers: cfg.Agent.MaxWorkers,
	})
	run.Start(ctx)
	st.SubscribeAgentChanges(run.HandleChange)

	sched := scheduler.New(st, registry, nil, sink, log, scheduler.Config{
		NamePrefix:   cfg.Scheduler.NamePrefix,
		DefaultModel: cfg.Scheduler.DefaultModel,
		SmallModels:  cfg.Scheduler.SmallModels,
		SmallCap:     cfg.Scheduler.SmallCap,
		LargeCap:     cfg.Scheduler.LargeCap,
	})

	ticker := newTicker(log)
	_, err = ticker.AddFunc(cfg.Scheduler.Cadence, func() {
		if err := sched.RunTick(ctx); err != nil {
			log.Error("Scheduler tick failed", err)
		}
	})
	if err != nil {
		log.Error("Invalid scheduler cadence", err,
			logger.Field{Key: "cadence", Value: cfg.Scheduler.Cadence})
		os.Exit(1)
	}
	ticker.Start()
	log.Info("⏰ Scheduler started", logger.Field{Key: "cadence", Value: cfg.Scheduler.Cadence})

	<-sigChan
	log.Info("Shutting down")
	cancel()
	<-ticker.Stop().Done()
	run.Wait()
}

// newTicker builds the tick clock. SkipIfStillRunning keeps at most one
// tick in flight: a tick that outlasts the cadence drops the next firing
// instead of overlapping it.
func newTicker(log *logger.Logger) *cron.Cron {
	return cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: log})))
}

// cronLogger adapts the structured logger to the cron.Logger interface.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, cronFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, err, cronFields(keysAndValues)...)
}

func cronFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		fields = append(fields, logger.Field{Key: key, Value: kv[i+1]})
	}
	return fields
}
