package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/hostmon/internal/agent"
	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/gpu"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/metrics"
	"codeberg.org/mutker/hostmon/internal/pid"
	"codeberg.org/mutker/hostmon/internal/protocol"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return 1
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("invalid log level: %v\n", err)
		return 1
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(""); err != nil {
		logger.ErrorWithCode(err).Msg("Failed to write pid file")
		return 1
	}
	defer func() {
		if err := pid.Remove(""); err != nil {
			logger.Error().Err(err).Msg("Failed to remove pid file")
		}
	}()

	store, err := connector.LoadDir(cfg.ConnectorsDir)
	if err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrLoadStore, err)).
			Str("dir", cfg.ConnectorsDir).
			Msg("Failed to load connectors")
		return 1
	}
	logger.Info().Int("connectors", len(store.All())).Msg("Connectors loaded")

	recorder, err := metrics.NewService(metrics.ConfigFrom(cfg.History), logger.ForComponent("history"))
	if err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrInitHistory, err)).Msg("Failed to open history")
		return 1
	}

	dispatcher := protocol.NewDispatcher(protocol.NewHostLimiter(cfg.SSHMaxSessions))
	dispatcher.Register(protocol.Local, protocol.LocalCommand{}, protocol.WithoutConfiguration())
	dispatcher.Register(protocol.SSH, protocol.SSHCommand{}, protocol.WithHostLimit())
	gpus := gpu.NewExecutor(gpu.NewLibrary())
	defer gpus.Close()
	dispatcher.Register(protocol.NVML, gpus, protocol.WithoutConfiguration())

	instr, err := agent.NewInstrumentation()
	if err != nil {
		logger.ErrorWithCode(err).Msg("Failed to create instrumentation")
		return 1
	}

	a, err := agent.New(cfg, store, dispatcher, agent.WithRecorder(recorder), agent.WithInstrumentation(instr))
	if err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrInitApp, err)).Msg("Failed to initialize agent")
		recorder.Close()
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close history")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if cfg.Once {
		logReports(a.TestConnectors(ctx))
		return 0
	}

	if cfg.MetricsListen != "" {
		srv := serveMetrics(cfg.MetricsListen, instr)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Failed to stop metrics endpoint")
			}
		}()
	}

	logger.Info().
		Int("resources", len(cfg.Resources)).
		Dur("interval", cfg.Interval).
		Int("workers", cfg.Workers).
		Msg("Monitoring started")
	a.Run(ctx)
	logger.Info().Msg("Exiting...")
	return 0
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func serveMetrics(addr string, instr *agent.Instrumentation) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", instr.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("listen", addr).Msg("Metrics endpoint failed")
		}
	}()
	logger.Info().Str("listen", addr).Msg("Metrics endpoint started")
	return srv
}

func logReports(reports []agent.Report) {
	for _, r := range reports {
		for _, result := range r.Results {
			logger.Info().
				Str("resource", r.ResourceID).
				Str("connector", result.ConnectorID).
				Bool("success", result.Success).
				Msg(result.Report())
		}
		logger.Info().
			Str("resource", r.ResourceID).
			Strs("selected", r.Selected).
			Msg("Detection completed")
	}
}
