package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisper/comment-moderator/internal/audit"
	"github.com/whisper/comment-moderator/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the decision audit schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := (&config.Validator{RequireAudit: true}).Validate(cfg); err != nil {
			return err
		}
		version, err := audit.Migrate(cfg.Audit.DSN)
		if err != nil {
			return err
		}
		logger.Info("audit schema up to date", "version", version)
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List recent rejected or degraded decisions",
	Long: `List the most recent decisions that were rejected or made while the model
was unavailable, newest first, with each author's rejection count over the
last 24 hours.`,
	RunE: runReview,
}

var reviewLimit int

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().IntVarP(&reviewLimit, "limit", "n", 20, "number of decisions to show")
}

func runReview(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := (&config.Validator{RequireAudit: true}).Validate(cfg); err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := audit.Open(ctx, cfg.Audit.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	store := audit.NewStore(db)

	entries, err := store.PendingReview(ctx, reviewLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOMMENT\tAUTHOR\tSTAGE\tDEGRADED\tREJECTED 24H\tREASON")
	counts := make(map[string]int)
	for _, e := range entries {
		n, seen := counts[e.AuthorID]
		if !seen && e.AuthorID != "" {
			if n, err = store.CountRejected(ctx, e.AuthorID, 24*time.Hour); err != nil {
				return err
			}
			counts[e.AuthorID] = n
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%d\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.CommentID, e.AuthorID,
			e.Stage, e.Degraded, n, e.Reason)
	}
	return tw.Flush()
}
