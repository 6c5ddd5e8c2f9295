package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-log/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dalnet/ircore/internal/config"
	"github.com/dalnet/ircore/internal/irc"
	"github.com/dalnet/ircore/internal/logging"
	"github.com/dalnet/ircore/internal/metrics"
	"github.com/dalnet/ircore/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
		logFile     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to every configured server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Install(logFile); err != nil {
				return err
			}
			return run(cmd.Context(), configPath, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&logFile, "log", "", "Append logs to this file instead of stderr")
	return cmd
}

func run(ctx context.Context, configPath, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	journal, err := storage.OpenJournal(cfg.DataDir)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := irc.NewClientFromConfig(cfg, irc.WithMetrics(metrics.New(metrics.WithRegistry(reg))))
	if err != nil {
		return err
	}
	ignore := make(map[string][]string)
	for _, sc := range cfg.Servers {
		ignore[sc.Name] = sc.Ignore
	}
	if err := client.Register(newBot(journal, cfg.Owners, ignore).handlers()); err != nil {
		return err
	}

	var srv *http.Server
	if metricsAddr != "" {
		srv = &http.Server{Addr: metricsAddr, Handler: metricsRouter(reg)}
		go func() {
			log.Logf("[ircbot] metrics on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Logf("[ircbot] metrics server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, s := range client.Servers() {
		log.Logf("[ircbot] connecting to %s (%s:%d)", s.Name, s.URL, s.Port)
	}
	if err := client.ConnectAll(ctx); err != nil {
		log.Logf("[ircbot] %v", err)
	}

	<-ctx.Done()
	log.Log("[ircbot] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		srv.Shutdown(shutdownCtx)
	}
	if err := client.Close(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func metricsRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}
