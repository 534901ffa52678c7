// cmd/dispatcher/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"promise-dispatch/internal/auditlog"
	sesaws "promise-dispatch/internal/common/aws"
	"promise-dispatch/internal/common/config"
	"promise-dispatch/internal/common/database"
	apperrors "promise-dispatch/internal/common/errors"
	"promise-dispatch/internal/common/logger"
	"promise-dispatch/internal/common/metrics"
	"promise-dispatch/internal/common/observability"
	"promise-dispatch/internal/common/validation"
	"promise-dispatch/internal/dispatch"
	"promise-dispatch/internal/schedule"
	"promise-dispatch/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// logOnlySender stands in for SES when the transport is disabled; it records
// the send instead of delivering, so local runs exercise the full cycle.
type logOnlySender struct {
	log logger.Logger
}

func (s *logOnlySender) SendEmail(ctx context.Context, to, subject, html string) error {
	s.log.Info("email transport disabled, logging instead of sending", map[string]interface{}{
		"recipient": to,
		"subject":   subject,
		"bodyBytes": len(html),
	})
	return nil
}

// dispatchRunSchema validates the manual-run request body.
var dispatchRunSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"targetUserEmail": {
			Type:        "string",
			Description: "narrow the cycle to one user's email",
		},
	},
	AdditionalProperties: false,
}

func main() {
	once := flag.Bool("once", false, "run a single dispatch cycle and exit")
	targetUser := flag.String("user", "", "narrow dispatch to one user email")
	configPath := flag.String("config", "", "explicit config file path")
	flag.Parse()

	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting promise dispatcher...")

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("promise-dispatch")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(apperrors.NewDatabaseConnectionFailedError(err)))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Email Transport ---
	var sender dispatch.EmailSender
	if cfg.Integrations.AWS.SES.Enabled {
		sesSender, err := sesaws.NewSender(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SES.FromEmail)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		sender = sesSender
		zapLog.Info("SES transport initialized", zap.String("from", cfg.Integrations.AWS.SES.FromEmail))
	} else {
		sender = &logOnlySender{log: log}
		zapLog.Warn("SES disabled, emails will be logged only")
	}

	// --- Wire Dispatcher ---
	db := pg.GetDB()
	evaluator := schedule.NewEvaluator(schedule.NewResolver(schedule.DefaultOffsets()))
	audit := auditlog.New(esClient, cfg.Database.Elasticsearch.AuditIndex)

	dispatcher := dispatch.New(
		dispatch.Config{SendTimeout: config.GetDuration(cfg.Dispatch.SendTimeout)},
		store.NewPreferenceStore(db),
		store.NewPromiseRepository(db),
		store.NewProfileDirectory(db),
		sender,
		audit,
		evaluator,
		log,
	)

	lock := dispatch.NewCycleLock(
		redisClient.GetClient(),
		cfg.Dispatch.LockKey,
		time.Duration(cfg.Dispatch.LockTTLSeconds)*time.Second,
	)

	runCycle := func(ctx context.Context, target string) (*dispatch.CycleResult, error) {
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire cycle lock: %w", err)
		}
		if !acquired {
			log.Info("cycle lock held elsewhere, skipping", map[string]interface{}{
				"lockKey": cfg.Dispatch.LockKey,
			})
			return &dispatch.CycleResult{}, nil
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Warn("cycle lock release failed", map[string]interface{}{"error": err.Error()})
			}
		}()

		start := time.Now()
		result, err := dispatcher.RunDispatchCycle(ctx, time.Now().UTC(), target)
		elapsed := time.Since(start)
		metrics.DispatchCycleDuration.Observe(elapsed.Seconds())

		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.DispatchCyclesTotal.WithLabelValues(status).Inc()
		obs.RecordCycle(ctx, status)
		obs.RecordCycleDuration(ctx, elapsed, status)
		return result, err
	}

	if *once {
		result, err := runCycle(ctx, *targetUser)
		if err != nil {
			zapLog.Fatal("dispatch cycle failed", zap.Error(err))
		}
		zapLog.Info("single dispatch cycle complete",
			zap.Int("dailyBriefsSent", result.DailyBriefsSent),
			zap.Int("periodicRemindersSent", result.PeriodicRemindersSent),
			zap.Int("leaderRadarsSent", result.LeaderRadarsSent),
			zap.Int("leaderReportsSent", result.LeaderReportsSent),
		)
		return
	}

	// --- Admin & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/dispatch/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		input := map[string]interface{}{}
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil && err.Error() != "EOF" {
				http.Error(w, "invalid JSON body", http.StatusBadRequest)
				return
			}
		}

		validated, err := validation.ValidateInput(input, dispatchRunSchema)
		if err != nil {
			http.Error(w, "validation error", http.StatusInternalServerError)
			return
		}
		if !validated.Valid {
			log.Warn("manual dispatch request rejected", map[string]interface{}{
				"error": apperrors.NewValidationFailedError(fmt.Sprintf("%v", validated.Errors)).Error(),
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(validated)
			return
		}

		target, _ := input["targetUserEmail"].(string)
		result, err := runCycle(r.Context(), target)
		if err != nil {
			log.Error("manual dispatch cycle failed", map[string]interface{}{"error": err.Error()})
			http.Error(w, "dispatch cycle failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	server := &http.Server{Addr: cfg.HTTP.Address, Handler: mux}
	go func() {
		zapLog.Info("Admin/Metrics server listening", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Admin/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Dispatch Loop ---
	interval := time.Duration(cfg.Dispatch.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zapLog.Info("Dispatch loop started", zap.Duration("interval", interval))

	// First cycle runs immediately so a restart never waits a full interval.
	if _, err := runCycle(ctx, *targetUser); err != nil {
		zapLog.Error("dispatch cycle failed", zap.Error(err),
			zap.Bool("cycleFatal", apperrors.IsCycleFatal(err)))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if _, err := runCycle(ctx, *targetUser); err != nil {
				zapLog.Error("dispatch cycle failed", zap.Error(err),
					zap.Bool("cycleFatal", apperrors.IsCycleFatal(err)))
			}
		case <-sigCh:
			zapLog.Info("Shutdown signal received, stopping dispatcher...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				zapLog.Error("Admin server shutdown failed", zap.Error(err))
			}
			zapLog.Info("Dispatcher stopped gracefully")
			return
		}
	}
}
