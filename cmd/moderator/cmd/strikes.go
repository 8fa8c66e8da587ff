package cmd

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/whisper/comment-moderator/internal/strikes"
)

var strikesCmd = &cobra.Command{
	Use:   "strikes <author_id>",
	Short: "Show or clear an author's strikes and mute",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrikes,
}

var strikesUnmute bool

func init() {
	rootCmd.AddCommand(strikesCmd)

	strikesCmd.Flags().BoolVar(&strikesUnmute, "unmute", false, "lift an active mute")
}

func runStrikes(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	author := args[0]

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	store := strikes.NewStore(rdb)

	if strikesUnmute {
		if err := store.Unmute(ctx, author); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s unmuted\n", author)
	}

	count, err := store.Count(ctx, author)
	if err != nil {
		return err
	}
	mute, err := store.MutedFor(ctx, author)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "author:  %s\n", author)
	fmt.Fprintf(out, "strikes: %d (mute at %d)\n", count, strikes.MuteThreshold)
	if mute != nil {
		fmt.Fprintf(out, "muted:   %s left (%s)\n", mute.Remaining.Round(time.Second), mute.Reason)
	} else {
		fmt.Fprintln(out, "muted:   no")
	}
	return nil
}
