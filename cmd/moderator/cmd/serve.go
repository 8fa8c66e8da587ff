package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/whisper/comment-moderator/internal/api"
	"github.com/whisper/comment-moderator/internal/audit"
	"github.com/whisper/comment-moderator/internal/cache"
	"github.com/whisper/comment-moderator/internal/config"
	"github.com/whisper/comment-moderator/internal/messaging"
	"github.com/whisper/comment-moderator/internal/metrics"
	"github.com/whisper/comment-moderator/internal/moderation"
	"github.com/whisper/comment-moderator/internal/ratelimit"
	"github.com/whisper/comment-moderator/internal/service"
	"github.com/whisper/comment-moderator/internal/strikes"
)

const drainTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the moderation worker",
	Long: `Run the moderation worker.

The worker joins a NATS queue group on comments.moderation.check and publishes
verdicts on comments.moderation.result.<comment_id>. The same pipeline is
served over HTTP at POST /api/v1/moderate, with /health and /metrics.

Examples:
  # Start with ./moderator.yaml and MODERATOR_* variables
  MODERATOR_LLM_API_KEY=sk-or-v1-... moderator serve

  # Fail closed when the model is unavailable
  moderator serve --fallback closed`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("http-addr", ":8080", "HTTP API listen address")
	serveCmd.Flags().String("nats-url", "nats://localhost:4222", "NATS server URL")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	serveCmd.Flags().String("fallback", "open", "verdict when the model is unavailable (open, closed)")

	_ = v.BindPFlag("http.addr", serveCmd.Flags().Lookup("http-addr"))
	_ = v.BindPFlag("nats.url", serveCmd.Flags().Lookup("nats-url"))
	_ = v.BindPFlag("redis.addr", serveCmd.Flags().Lookup("redis-addr"))
	_ = v.BindPFlag("moderation.fallback_policy", serveCmd.Flags().Lookup("fallback"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateForServe(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	limiter := ratelimit.NewLimiter(rdb, logger)
	gate := ratelimit.NewModelGate(limiter, cfg.RateLimit.ModelCallsPerMinute, func() {
		metrics.RateLimitedTotal.WithLabelValues("model").Inc()
	})

	// Pipeline.
	lexicons, err := loadLexicons(cfg, logger)
	if err != nil {
		return err
	}
	client := newModelClient(cfg)
	mod, err := newModerator(cfg, client, lexicons, logger,
		moderation.WithGate(gate),
		moderation.WithObserver(metrics.Observer{}),
	)
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithAuthorLimiter(ratelimit.NewAuthorLimit(limiter, cfg.RateLimit.CommentsPerMinute)),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, service.WithCache(cache.NewVerdicts(rdb, cfg.Cache.TTL)))
	}
	if cfg.Strikes.Enabled {
		opts = append(opts, service.WithStrikes(strikes.NewStore(rdb)))
	}
	if cfg.Audit.Enabled {
		db, err := audit.Open(ctx, cfg.Audit.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, service.WithAudit(audit.NewStore(db)))
	}
	svc := service.New(service.Config{
		DefaultLocale: cfg.Moderation.Locale,
		Timeout:       cfg.Moderation.RequestTimeout,
		Model:         cfg.LLM.Model,
	}, mod, opts...)

	// NATS setup.
	natsCfg := messaging.DefaultNATSConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Name = cfg.NATS.Name
	nc, err := messaging.NewNATSClient(natsCfg, logger)
	if err != nil {
		return err
	}
	closeNATS := sync.OnceFunc(nc.Close)
	defer closeNATS()

	// In-flight requests outlive the signal so they can finish during drain.
	worker := service.NewWorker(context.WithoutCancel(ctx), svc, nc, cfg.NATS.MaxConcurrent, logger)
	if err := nc.SubscribeModerationCheck(cfg.NATS.QueueGroup, worker.HandleMsg); err != nil {
		return err
	}

	httpCfg := api.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	httpCfg.CORSOrigins = cfg.HTTP.CORSOrigins
	srv := api.New(httpCfg, svc, logger,
		api.WithHealthCheck("nats", func(context.Context) error {
			if !nc.Healthy() {
				return errors.New("disconnected")
			}
			return nil
		}),
		api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	)

	logger.Info("moderation worker running",
		"nats_url", natsCfg.URL,
		"queue_group", cfg.NATS.QueueGroup,
		"http_addr", httpCfg.Addr,
		"model", cfg.LLM.Model,
		"fallback_policy", cfg.Moderation.FallbackPolicy,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr, logger) })
	}
	if cfg.Moderation.WatchLexicon && cfg.Moderation.LexiconFile != "" {
		g.Go(func() error {
			return lexicons.Watch(gctx, cfg.Moderation.LexiconFile, cfg.Moderation.Locale)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down, draining in-flight requests")
		closeNATS()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := worker.Wait(drainCtx); err != nil {
			logger.Warn("drain timed out", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// serveMetrics runs the standalone metrics listener until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
