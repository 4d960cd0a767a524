package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/govworks/foia/internal/activity"
	"github.com/govworks/foia/internal/api"
	"github.com/govworks/foia/internal/auth"
	"github.com/govworks/foia/internal/config"
	"github.com/govworks/foia/internal/connectors/sources"
	"github.com/govworks/foia/internal/entitygraph"
	"github.com/govworks/foia/internal/events"
	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/metrics"
	"github.com/govworks/foia/internal/notifications"
	"github.com/govworks/foia/internal/queue"
	"github.com/govworks/foia/internal/scheduler"
	"github.com/govworks/foia/internal/store"
)

const queueStatsInterval = 30 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	db, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	users := auth.NewPostgresUserStore(db.DB())
	authSvc := auth.NewService(auth.Config{
		JWTSecret:          cfg.Auth.JWTSecret,
		AccessTokenExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
	}, users)
	if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	var activityLog interface {
		foia.ActivitySink
		api.ActivityLister
	} = db
	if cfg.ActivityLog.Driver == "sqlite" {
		sink, err := activity.Open(cfg.ActivityLog.SQLitePath)
		if err != nil {
			return err
		}
		defer sink.Close()
		activityLog = sink
		logger.Info("activity log on sqlite", "path", cfg.ActivityLog.SQLitePath)
	}

	opts := []foia.Option{
		foia.WithLogger(logger),
		foia.WithActivitySink(activityLog),
	}

	if cfg.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(events.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		defer publisher.Close()
		opts = append(opts, foia.WithPublisher(publisher))
	}

	notifier := notifications.NewService(notifications.Config{
		MinPII: cfg.Notifications.MinPII,
		Slack: notifications.SlackConfig{
			Enabled:    cfg.Notifications.Slack.Enabled,
			WebhookURL: cfg.Notifications.Slack.WebhookURL,
			Channel:    cfg.Notifications.Slack.Channel,
		},
		Email: notifications.EmailConfig{
			Enabled:  cfg.Notifications.Email.Enabled,
			SMTPHost: cfg.Notifications.Email.SMTPHost,
			SMTPPort: cfg.Notifications.Email.SMTPPort,
			Username: cfg.Notifications.Email.Username,
			Password: cfg.Notifications.Email.Password,
			From:     cfg.Notifications.Email.From,
			To:       cfg.Notifications.Email.To,
		},
	}, logger)
	if notifier.Enabled() {
		opts = append(opts, foia.WithPublisher(notifier))
	}

	var graph *entitygraph.Graph
	if cfg.Neo4j.Enabled {
		graph, err = entitygraph.New(ctx, entitygraph.Config{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
		})
		if err != nil {
			// The graph only enriches analyses; run without it.
			logger.Warn("entity graph unavailable", "error", err)
			graph = nil
		} else {
			defer graph.Close(context.Background())
			opts = append(opts, foia.WithGraph(graph))
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
		opts = append(opts, foia.WithRecorder(m))
	}

	requests := foia.NewRequests(db, opts...)
	architect := foia.NewArchitect(db, db, opts...)
	documents := foia.NewDocumentAnalyzer(db, opts...)

	deps := api.Deps{
		Requests:  requests,
		Architect: architect,
		Documents: documents,
		Auth:      authSvc,
		DB:        db,
		Activity:  activityLog,
		Metrics:   m,
	}
	if graph != nil {
		deps.Graph = graph
	}

	var jobs *queue.Queue
	if cfg.Queue.Enabled {
		jobs, err = queue.New(queue.Config{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer jobs.Close()
		deps.Queue = jobs

		registry := sources.Build(ctx, cfg.Storage, logger)
		defer registry.Close()

		workers := startWorkers(ctx, cfg, jobs, documents, registry, notifier, logger)
		defer func() {
			for _, w := range workers {
				w.Stop()
			}
		}()

		if m != nil {
			go reportQueueStats(ctx, jobs, m, logger)
		}
	}

	if cfg.Scheduler.Enabled {
		sched, err := newScheduler(cfg, db, users, jobs, notifier, logger)
		if err != nil {
			return err
		}
		deps.Scheduler = sched
	}

	server, err := api.NewServer(cfg, deps, api.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("starting FOIA server", "host", cfg.Server.Host, "port", cfg.Server.Port)
	return server.Run(ctx)
}

func startWorkers(ctx context.Context, cfg *config.Config, jobs *queue.Queue, analyzer queue.Analyzer, source queue.TextSource, notifier *notifications.Service, logger *slog.Logger) []*queue.Worker {
	onFailure := func(ctx context.Context, job *queue.Job, err error) {
		if !notifier.Enabled() {
			return
		}
		if nerr := notifier.NotifyJobFailed(ctx, job.DocumentID.String(), job.Source, job.Attempts, err.Error()); nerr != nil {
			logger.Warn("sending job failure notification", "job_id", job.ID, "error", nerr)
		}
	}

	workers := make([]*queue.Worker, 0, cfg.Queue.Workers)
	for i := 0; i < cfg.Queue.Workers; i++ {
		w := queue.NewWorker(queue.WorkerConfig{
			Queue:        jobs,
			Analyzer:     analyzer,
			Source:       source,
			Logger:       logger,
			JobTimeout:   cfg.Queue.JobTimeout,
			IdleWait:     cfg.Queue.PollTimeout,
			StaleTimeout: cfg.Scheduler.StaleAfter,
			OnFailure:    onFailure,
		})
		if err := w.Start(ctx); err != nil {
			logger.Error("starting worker", "error", err)
			continue
		}
		workers = append(workers, w)
	}
	logger.Info("document workers started", "count", len(workers))
	return workers
}

func reportQueueStats(ctx context.Context, jobs *queue.Queue, m *metrics.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(queueStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := jobs.GetQueueStats(ctx)
			if err != nil {
				logger.Warn("collecting queue stats", "error", err)
				continue
			}
			workers, err := jobs.GetActiveWorkers(ctx, time.Minute)
			if err != nil {
				logger.Warn("listing active workers", "error", err)
				continue
			}
			m.SetQueueStats(stats, len(workers))
		}
	}
}

func newScheduler(cfg *config.Config, db *store.Store, users *auth.PostgresUserStore, jobs *queue.Queue, notifier *notifications.Service, logger *slog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(scheduler.NewPostgresStore(db.DB()), logger)

	var overdueNotifier scheduler.OverdueNotifier
	if notifier.Enabled() {
		overdueNotifier = notifier
	}
	var staleJobs scheduler.StaleJobCleaner
	if jobs != nil {
		staleJobs = jobs
	}

	for _, job := range []scheduler.Job{
		{
			ID:          scheduler.JobOverdueSweep,
			Description: "Notify staff about requests past their due date",
			Schedule:    cfg.Scheduler.OverdueSweep,
			Timeout:     5 * time.Minute,
			Handler:     scheduler.OverdueSweep(db, overdueNotifier, time.Now),
		},
		{
			ID:          scheduler.JobRetentionPurge,
			Description: "Delete old request analyses and expired refresh tokens",
			Schedule:    cfg.Scheduler.RetentionPurge,
			Timeout:     10 * time.Minute,
			Handler:     scheduler.RetentionPurge(db, users, cfg.Scheduler.AnalysisRetention, time.Now),
		},
		{
			ID:          scheduler.JobStaleSweep,
			Description: "Requeue stuck jobs and fail abandoned document analyses",
			Schedule:    cfg.Scheduler.StaleRequeue,
			Timeout:     5 * time.Minute,
			Handler:     scheduler.StaleSweep(db, staleJobs, cfg.Scheduler.StaleAfter, time.Now),
		},
	} {
		if err := sched.Register(job); err != nil {
			return nil, fmt.Errorf("registering %s: %w", job.ID, err)
		}
	}
	return sched, nil
}
