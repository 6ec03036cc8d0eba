package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"govern/internal/alert"
	alerthandler "govern/internal/alert/handler"
	alertmetrics "govern/internal/alert/metrics"
	"govern/internal/events"
	httpapi "govern/internal/http"
	"govern/internal/platform/config"
	"govern/internal/platform/httpserver"
	"govern/internal/platform/logger"
	"govern/internal/platform/postgres"
	platformredis "govern/internal/platform/redis"
	"govern/internal/rule"
	rulehandler "govern/internal/rule/handler"
	"govern/internal/sweep"
	"govern/internal/workflow"
	workflowhandler "govern/internal/workflow/handler"
	workflowmetrics "govern/internal/workflow/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the domain packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpapi.HealthCheck{}

	// Stores: PostgreSQL when configured, in-memory otherwise.
	var (
		db            *sql.DB
		ruleStore     rule.Store
		alertStore    alert.Store
		triggerRules  workflow.TriggerRuleStore
		templateStore workflow.TemplateStore
		executions    workflow.ExecutionStore
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		ruleStore = rule.NewPostgresStore(db)
		alertStore = alert.NewPostgresStore(db)
		triggerRules = workflow.NewPostgresTriggerRuleStore(db)
		templateStore = workflow.NewPostgresTemplateStore(db)
		executions = workflow.NewPostgresExecutionStore(db)
		checks["postgres"] = db.PingContext
	} else {
		log.Warn("no database configured, using in-memory stores")
		ruleStore = rule.NewMemoryStore()
		alertStore = alert.NewMemoryStore()
		triggerRules = workflow.NewMemoryTriggerRuleStore()
		templateStore = workflow.NewMemoryTemplateStore()
		executions = workflow.NewMemoryExecutionStore()
	}

	// Optional distributed start guard.
	startGuard := workflow.StartGuard(workflow.NopGuard{})
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		startGuard = workflow.NewRedisStartGuard(redisClient.Client, 0)
		checks["redis"] = redisClient.Health
	}

	// Optional lifecycle event feed.
	publisher := events.Publisher(events.Nop{})
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka publisher setup failed", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		publisher = kafka
	}

	alertEngine := alert.NewEngine(ruleStore, alertStore,
		alert.WithLogger(log),
		alert.WithMetrics(alertmetrics.New()),
		alert.WithPublisher(publisher),
		alert.WithBatchLimit(cfg.BatchLimit),
	)

	wfMetrics := workflowmetrics.New()
	triggerEngine := workflow.NewTriggerEngine(triggerRules, templateStore, executions,
		workflow.WithLogger(log),
		workflow.WithMetrics(wfMetrics),
		workflow.WithPublisher(publisher),
		workflow.WithStartGuard(startGuard),
	)
	approvals := workflow.NewApprovalService(executions,
		workflow.WithApprovalLogger(log),
		workflow.WithApprovalMetrics(wfMetrics),
		workflow.WithApprovalPublisher(publisher),
	)

	scheduler := sweep.NewScheduler(alertEngine, sweep.Config{
		Schedule:      cfg.SweepSchedule,
		RetentionDays: cfg.RetentionDays,
	}, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Error("sweep scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	router := httpapi.NewRouter(httpapi.Config{
		Handlers: []httpapi.Registrar{
			alerthandler.New(alertEngine, log),
			rulehandler.New(ruleStore, log),
			workflowhandler.New(triggerEngine, approvals, triggerRules, templateStore, log),
		},
		Checks: checks,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting govern engine", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
