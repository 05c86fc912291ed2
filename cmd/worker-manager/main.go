// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"abm-playbook-workers/internal/agent"
	"abm-playbook-workers/internal/common/aws"
	"abm-playbook-workers/internal/common/camunda"
	"abm-playbook-workers/internal/common/config"
	"abm-playbook-workers/internal/common/database"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/common/observability"
	"abm-playbook-workers/internal/generation"
	"abm-playbook-workers/internal/normalize"
	"abm-playbook-workers/internal/repository"

	cl "abm-playbook-workers/internal/workers/abm/contacts-library"
	ep "abm-playbook-workers/internal/workers/abm/export-playbook"
	gp "abm-playbook-workers/internal/workers/abm/generate-playbook"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func fatal(log logger.Logger, msg string, err error) {
	log.Error(msg, map[string]interface{}{"error": err})
	logger.Sync(log)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.FromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	log.Info("Starting worker manager...", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		fatal(log, "zeebe client failed after retries", err)
	}
	defer zeebe.Close()
	log.Info("Zeebe client connected successfully", nil)

	// --- Redis (playbook history, required) ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		fatal(log, "redis failed after retries", err)
	}
	defer rdb.Close()
	log.Info("Redis connected successfully", nil)

	history := repository.NewRedisStore(rdb.Client, cfg.Database.Redis.HistoryKey, cfg.Playbook.HistoryLimit, log)

	// --- PostgreSQL (playbook archive, optional) ---
	var archive *repository.PostgresArchive
	if cfg.Database.Postgres.Host != "" {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			fatal(log, "postgres failed after retries", err)
		}
		defer pg.Close()

		archive = repository.NewPostgresArchive(pg.DB)
		if err := archive.EnsureSchema(ctx); err != nil {
			fatal(log, "postgres archive schema failed", err)
		}
		log.Info("PostgreSQL archive ready", nil)
	}

	// --- Elasticsearch (contact index, optional) ---
	var contactIndex *repository.ContactIndex
	if len(cfg.Database.Elasticsearch.Addresses) > 0 {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			fatal(log, "elasticsearch failed after retries", err)
		}
		contactIndex = repository.NewContactIndex(es.Client, cfg.Database.Elasticsearch.ContactIndex, log)
		log.Info("Elasticsearch contact index ready", map[string]interface{}{"index": cfg.Database.Elasticsearch.ContactIndex})
	}

	// --- Generation ---
	normOpts, err := normalize.OptionsFromConfig(cfg.Playbook)
	if err != nil {
		fatal(log, "invalid playbook configuration", err)
	}
	sessions := generation.NewRegistry(generation.Deps{
		Agent:      agent.NewClient(cfg.APIs.Agent, log),
		Normalizer: normalize.NewNormalizer(normOpts, log),
		AgentID:    cfg.APIs.Agent.AgentID,
		Timeout:    config.GetDuration(cfg.APIs.Agent.Timeout),
		Logger:     log,
		Tracer:     obs.Tracer("abm-playbook-workers/generation"),
	})

	// --- Workers ---
	var workers []worker.JobWorker
	register := func(taskType string, handler worker.JobHandler) {
		if !config.IsWorkerEnabled(cfg, taskType) {
			log.Info("Worker disabled, skipping", map[string]interface{}{"taskType": taskType})
			return
		}
		if jw := camunda.Register(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, obs, log); jw != nil {
			workers = append(workers, jw)
		}
	}

	genOpts := gp.HandlerOptions{
		Config:   gp.ConfigFromApp(cfg),
		Sessions: sessions,
		History:  history,
		Logger:   log,
	}
	if archive != nil {
		genOpts.Archive = archive
	}
	if contactIndex != nil {
		genOpts.Contacts = contactIndex
	}
	generate, err := gp.NewHandler(genOpts)
	if err != nil {
		fatal(log, "failed to create generate-playbook handler", err)
	}
	register(gp.TaskType, generate.Handle)

	exportOpts := ep.HandlerOptions{
		Config:  ep.ConfigFromApp(cfg),
		History: history,
		Logger:  log,
	}
	if archive != nil {
		exportOpts.Archive = archive
	}
	if exportOpts.Config.EmailEnabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			fatal(log, "failed to create SES client", err)
		}
		exportOpts.SES = sesClient
	}
	if exportOpts.Config.SNSEnabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			fatal(log, "failed to create SNS client", err)
		}
		exportOpts.SNS = snsClient
	}
	exporter, err := ep.NewHandler(exportOpts)
	if err != nil {
		fatal(log, "failed to create export-playbook handler", err)
	}
	register(ep.TaskType, exporter.Handle)

	libraryOpts := cl.HandlerOptions{
		Config:  cl.ConfigFromApp(cfg),
		History: history,
		Logger:  log,
	}
	if contactIndex != nil {
		libraryOpts.Index = contactIndex
	}
	library, err := cl.NewHandler(libraryOpts)
	if err != nil {
		fatal(log, "failed to create contacts-library handler", err)
	}
	register(cl.TaskType, library.Handle)

	log.Info("Workers registered", map[string]interface{}{"count": len(workers)})

	// --- Health / metrics ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(checkCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		if err := zeebe.HealthCheck(checkCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Health/Metrics server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Health/Metrics server failed", map[string]interface{}{"error": err})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received, stopping workers...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range workers {
		jw.Close()
		jw.AwaitClose()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping health server", map[string]interface{}{"error": err})
	}

	log.Info("Worker manager stopped gracefully", nil)
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
