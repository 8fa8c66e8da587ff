package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisper/comment-moderator/internal/config"
	"github.com/whisper/comment-moderator/internal/protocol"
	"github.com/whisper/comment-moderator/internal/service"
)

var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Moderate a single comment and print the verdict",
	Long: `Moderate a single comment and print the verdict as JSON.

The comment is read from the argument, or from stdin when no argument is
given. Redis, NATS and Postgres are not used. Without an API key only the
heuristic checks run.

Examples:
  moderator check "Great article, thanks!"
  echo "BUY NOW!!!!!!!!" | moderator check --locale pt-BR
  moderator check --health`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

var (
	checkLocale string
	checkHealth bool
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkLocale, "locale", "", "comment locale (default: moderation.locale)")
	checkCmd.Flags().BoolVar(&checkHealth, "health", false, "only verify the model is reachable")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	ctx := cmd.Context()

	client := newModelClient(cfg)
	if checkHealth {
		if client == nil {
			return errors.New("no model configured (set MODERATOR_LLM_API_KEY)")
		}
		hctx, cancel := context.WithTimeout(ctx, cfg.LLM.Timeout)
		defer cancel()
		if err := client.HealthCheck(hctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "model %s is reachable\n", client.Model())
		return nil
	}

	text, err := commentText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	lexicons, err := loadLexicons(cfg, logger)
	if err != nil {
		return err
	}
	mod, err := newModerator(cfg, client, lexicons, logger)
	if err != nil {
		return err
	}
	svc := service.New(service.Config{
		DefaultLocale: cfg.Moderation.Locale,
		Model:         cfg.LLM.Model,
	}, mod, service.WithLogger(logger))

	req := protocol.CheckRequest{Text: text, Locale: checkLocale}
	if err := req.Validate(false); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*cfg.Moderation.ModelTimeout+5*time.Second)
	defer cancel()
	res, err := svc.Check(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func commentText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no comment given: pass it as an argument or on stdin")
		}
	}
	data, err := io.ReadAll(io.LimitReader(stdin, protocol.MaxRequestBytes))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
