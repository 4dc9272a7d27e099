package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hlachaal/24hkids-platform/config"
	"github.com/hlachaal/24hkids-platform/internal/clock"
	"github.com/hlachaal/24hkids-platform/internal/database/memory"
	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/notification"
	"github.com/hlachaal/24hkids-platform/internal/service"
	"github.com/hlachaal/24hkids-platform/internal/transport"
	"github.com/hlachaal/24hkids-platform/internal/worker"

	"github.com/hlachaal/24hkids-platform/pkg/kafka"
	"github.com/hlachaal/24hkids-platform/pkg/postgres"
	"github.com/hlachaal/24hkids-platform/pkg/queue"
	"github.com/hlachaal/24hkids-platform/pkg/redis"
	"github.com/hlachaal/24hkids-platform/pkg/retry"
	"github.com/hlachaal/24hkids-platform/pkg/scheduler"
	"github.com/hlachaal/24hkids-platform/pkg/sqlite"
	"github.com/hlachaal/24hkids-platform/pkg/telegram"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ConfigureLogging applies the log section to the global logrus logger.
func ConfigureLogging(cfg config.LogConfig) {
	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// OpenStore connects the configured backend and applies its schema.
func OpenStore(cfg *config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewPostgresDB(cfg)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(db); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewSQLStore(db, repository.DialectPostgres, cfg.LockTimeout), nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLStore(db, repository.DialectSQLite, cfg.LockTimeout), nil

	case config.DriverMemory:
		logrus.Warn("Using the in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// NewServer wires every component and serves until SIGINT or SIGTERM.
func NewServer(cfg *config.Config) error {
	ConfigureLogging(cfg.Log)

	store, err := OpenStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	clk := clock.System()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workers := newBackground(cancel)

	var notifier service.Notifier = notification.LogNotifier{}
	if cfg.Telegram.Enabled {
		notifier = notification.NewTelegramNotifier(telegram.NewBot(cfg.Telegram.BotToken), store)
		logrus.Info("Telegram notifications enabled")
	} else {
		logrus.Warn("Telegram disabled, notifications are only logged")
	}

	var (
		taskPublisher service.TaskPublisher
		dlq           queue.DLQHandler
		queueStats    transport.QueueStatsSource
	)
	if cfg.Redis.Enabled {
		redisQueue, redisClient, err := newNotificationQueue(&cfg.Redis)
		if err != nil {
			logrus.WithError(err).Error("Failed to initialize Redis queue, notifications are sent inline")
		} else {
			defer redisClient.Close()
			defer redisQueue.Close()
			taskPublisher = service.NewQueueAdapter(redisQueue)
			dlq = redisQueue.DLQ()
			queueStats = redisQueue

			taskHandler := queue.NewTaskHandler(notifier, 30*time.Second)
			workers.Go(func() {
				if err := redisQueue.Subscribe(ctx, taskHandler.HandleTask); err != nil {
					logrus.WithError(err).Error("Queue subscriber stopped")
				}
			})
			logrus.Info("Queue subscriber started")
		}
	}

	auditWriters := []service.AuditWriter{store.Audit()}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		defer producer.Close()
		auditWriters = append(auditWriters, service.NewStreamAuditWriter(producer))
	}
	auditSink := service.NewAsyncAuditSink(clk, cfg.Booking.AuditBuffer, auditWriters...)
	defer auditSink.Close()

	opts := service.Options{
		MaxAttempts: cfg.Booking.MaxAttempts,
		BaseDelay:   cfg.Booking.BaseDelay,
		TxTimeout:   cfg.Booking.TxTimeout,
	}
	dispatcher := service.NewDispatcher(store.Outbox(), taskPublisher, notifier, clk)

	bookingService := service.NewBookingService(store, clk, dispatcher, auditSink, opts)
	eventService := service.NewEventService(store, clk, dispatcher, auditSink, opts)
	familyService := service.NewFamilyService(store, clk, auditSink, opts)

	relay := worker.NewOutboxRelayWorker(dispatcher, cfg.Worker.OutboxInterval, cfg.Worker.BatchSize)
	workers.Go(func() { relay.Start(ctx) })
	logrus.Info("Outbox relay started")

	reconciler := scheduler.NewScheduler(eventService, cfg.Worker.ReconcileInterval)
	workers.Go(func() { reconciler.Start(ctx) })
	logrus.Info("Status reconciler started")

	// Registered last so it runs first: the workers are gone before the audit
	// sink, the queue and the store are closed.
	defer workers.Stop()

	if cfg.Server.Mode == "release" || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.InitRoutes(transport.Handlers{
		Event:   transport.NewEventHandler(eventService),
		Booking: transport.NewBookingHandler(bookingService),
		Family:  transport.NewFamilyHandler(familyService),
		Admin:   transport.NewAdminHandler(store.Audit(), dlq, queueStats),
	}, transport.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.Timeout,
	})

	srv := new(Server)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logrus.WithFields(logrus.Fields{
		"address": cfg.GetServerAddress(),
		"driver":  cfg.Database.Driver,
		"version": cfg.Server.AppVersion,
	}).Info("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	logrus.Info("App Shutting Down")
	workers.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("error occured on server shutting down")
	}
	return nil
}

// background tracks the goroutines that use the store and the queue.
type background struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newBackground(cancel context.CancelFunc) *background {
	return &background{cancel: cancel}
}

func (b *background) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// Stop cancels the shared context and waits for every goroutine to return.
func (b *background) Stop() {
	b.once.Do(func() {
		b.cancel()
		b.wg.Wait()
		logrus.Info("Background workers stopped")
	})
}

func newNotificationQueue(cfg *config.RedisConfig) (*queue.RedisQueue, *goredis.Client, error) {
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	queueCfg := queue.DefaultRedisQueueConfig()
	retryManager := retry.NewManager(queueCfg.MaxRetries, queueCfg.BaseDelay, retry.DefaultClassifier)
	dlqHandler := queue.NewDefaultDLQHandler(client, queueCfg.DLQ, queueCfg.MainQueue)

	q, err := queue.NewRedisQueue(client, queueCfg, retryManager, dlqHandler)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logrus.Info("Redis queue initialized")
	return q, client, nil
}
