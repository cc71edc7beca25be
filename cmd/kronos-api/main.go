// Kronos API — HTTP API для регистрации расписаний и просмотра задач.
//
// API сам не слушает события истечения: он взводит маркеры в Redis,
// сразу ставит задачи для "now" и читает очередь из PostgreSQL.
// Срабатывания обрабатывает kronos-scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Kronos/internal/api"
	"github.com/shaiso/Kronos/internal/config"
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
		Use:           "kronos-api",
		Short:         "Kronos HTTP API",
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
	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file (default: $KRONOS_CONFIG)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting kronos-api")

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
	logger.Info("redis connected")

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// RabbitMQ (опционально)
	var publisher queue.Publisher
	if cfg.AMQP.URL != "" {
		mqConn, err := mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, jobs will not be announced", "error", err)
		} else {
			defer mqConn.Close()
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

	// Без Source: события истечения обрабатывает kronos-scheduler
	sched := scheduler.New(scheduler.Config{
		Store:    keys,
		Queue:    jobs,
		Logger:   logger,
		Metrics:  metrics,
		Location: loc,
	})

	handler := api.NewHandler(api.Config{
		Scheduler: sched,
		Jobs:      jobs,
		Health: func(ctx context.Context) error {
			if err := keys.Ping(ctx); err != nil {
				return err
			}
			return pool.Ping(ctx)
		},
		Logger:    logger,
		Metrics:   metrics,
		RateLimit: cfg.HTTP.RateLimit,
		RateBurst: cfg.HTTP.RateBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}
