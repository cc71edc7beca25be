// Kronos Scheduler — слушает истечение маркеров и ставит задачи в очередь.
//
// Scheduler:
//   - Подписывается на __keyevent@<db>__:expired в Redis
//   - На срабатывание маркера ставит задачу в PostgreSQL-очередь
//   - Перевзводит повторяющиеся расписания
//   - Переводит отложенные (DELAYED) задачи в QUEUED по promote_at
//   - Объявляет готовые задачи в RabbitMQ
//
// Экземпляров может быть несколько: срабатывание отмечается в Redis
// (SET NX), задача защищена ключом идемпотентности.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Kronos/internal/config"
	"github.com/shaiso/Kronos/internal/listener"
	"github.com/shaiso/Kronos/internal/mq"
	"github.com/shaiso/Kronos/internal/queue"
	"github.com/shaiso/Kronos/internal/repo"
	"github.com/shaiso/Kronos/internal/scheduler"
	"github.com/shaiso/Kronos/internal/store"
	"github.com/shaiso/Kronos/internal/telemetry"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "kronos-scheduler",
		Short:         "Kronos scheduler: fires expired markers into the job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $KRONOS_CONFIG)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)

			pool, err := repo.NewPool(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer pool.Close()
			return repo.Migrate(cmd.Context(), pool, logger)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting kronos-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Redis
	client, err := store.Connect(ctx, cfg.StoreClient())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer client.Close()
	keys := store.New(client, cfg.StoreOptions())
	logger.Info("redis connected", "prefix", cfg.Redis.Prefix)

	if cfg.Redis.ConfigureNotifications {
		if err := keys.EnableNotifications(ctx); err != nil {
			// Без событий истечения маркеры не сработают
			logger.Warn("failed to enable keyspace notifications", "error", err)
		}
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	if cfg.Database.AutoMigrate {
		if err := repo.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	// RabbitMQ
	var publisher queue.Publisher
	if cfg.AMQP.URL != "" {
		mqConn, err := mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, jobs will not be announced", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	jobs := queue.New(queue.Config{
		Repo:      repo.NewJobRepo(pool),
		Publisher: publisher,
		Logger:    logger,
	})

	sched := scheduler.New(scheduler.Config{
		Store:              keys,
		Queue:              jobs,
		Source:             listener.NewRedisSource(client, store.DB(client)),
		Logger:             logger,
		Metrics:            metrics,
		Location:           loc,
		RearmAttempts:      cfg.Scheduler.RearmAttempts,
		RearmBackoff:       cfg.Scheduler.RearmBackoff,
		ListenerMinBackoff: cfg.Scheduler.ListenerMinBackoff,
		ListenerMaxBackoff: cfg.Scheduler.ListenerMaxBackoff,
	})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	// Promoter отложенных задач
	promoterDone := make(chan struct{})
	go func() {
		defer close(promoterDone)
		jobs.RunPromoter(ctx, cfg.Scheduler.PromoteInterval, cfg.Scheduler.PromoteBatch)
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz(keys, pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              cfg.HTTP.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()
	<-promoterDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("kronos-scheduler stopped")
	return nil
}

// healthz отвечает 200, если Redis и PostgreSQL доступны.
func healthz(keys *store.KeyStore, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		err := keys.Ping(ctx)
		if err == nil {
			err = pool.Ping(ctx)
		}
		if err != nil {
			slog.Warn("health check failed", "error", err)
			http.Error(w, "unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
