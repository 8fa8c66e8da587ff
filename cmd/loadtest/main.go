// Command loadtest drives a running moderation worker over NATS
// request/reply and prints latency percentiles and the verdict mix.
//
// Usage:
//
//	loadtest --requests 500 --concurrency 20 --authors 50
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisper/comment-moderator/internal/loadtest"
	"github.com/whisper/comment-moderator/internal/logging"
	"github.com/whisper/comment-moderator/internal/messaging"
)

func main() {
	var (
		natsURL string
		cfg     loadtest.Config
	)

	cmd := &cobra.Command{
		Use:          "loadtest",
		Short:        "Load test the comment moderation worker",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			natsCfg := messaging.DefaultNATSConfig()
			natsCfg.URL = natsURL
			natsCfg.Name = "comment-moderator-loadtest"
			natsCfg.MaxReconnects = 0
			nc, err := messaging.NewNATSClient(natsCfg, logging.New(logging.Config{Level: "warn", Format: "text"}))
			if err != nil {
				return err
			}
			defer nc.Close()

			fmt.Printf("Load test: %d requests to %s (concurrency=%d, authors=%d)\n",
				cfg.Requests, natsURL, cfg.Concurrency, cfg.Authors)

			collector := loadtest.NewCollector()
			progressDone := make(chan struct{})
			go progress(ctx, collector, cfg.Requests, progressDone)

			err = loadtest.Run(ctx, nc.Conn(), cfg, collector)
			close(progressDone)
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted.")
			}
			collector.Report(os.Stdout)
			return err
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	cmd.Flags().IntVarP(&cfg.Requests, "requests", "n", 200, "total check requests to send")
	cmd.Flags().IntVarP(&cfg.Concurrency, "concurrency", "c", 10, "requests in flight at once")
	cmd.Flags().IntVar(&cfg.Authors, "authors", 20, "distinct author IDs (0 for anonymous)")
	cmd.Flags().DurationVar(&cfg.Interval, "interval", 0, "delay between request launches")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "per-request reply deadline")
	cmd.Flags().StringVar(&cfg.Locale, "locale", "", "locale sent with every request")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func progress(ctx context.Context, c *loadtest.Collector, total int, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Printf("  [progress] replies: %d/%d  no reply: %d\n", c.Completed(), total, c.Failures())
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
