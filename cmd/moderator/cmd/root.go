// Package cmd implements the moderator command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/whisper/comment-moderator/internal/config"
	"github.com/whisper/comment-moderator/internal/lexicon"
	"github.com/whisper/comment-moderator/internal/llm"
	"github.com/whisper/comment-moderator/internal/logging"
	"github.com/whisper/comment-moderator/internal/moderation"
)

var (
	cfgFile string

	appVersion string
	appCommit  string

	// v carries flag bindings into the config loader.
	v = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "moderator",
	Short: "Comment moderation worker",
	Long: `moderator decides whether user comments are appropriate to publish.

Comments go through cheap heuristic checks, a remote language model, and a
denylist reconciliation. When the model is unavailable the worker degrades to
heuristics only instead of failing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// SetVersion records build information for the version command.
func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./moderator.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "auto",
		"log format (auto, text, json)")

	// Bind flags to viper (errors are nil when flag exists)
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("comment-moderator %s\n", appVersion)
		fmt.Printf("  commit: %s\n", appCommit)
	},
}

// loadConfig loads configuration and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	loader := config.NewLoaderWithViper(v)
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if f := loader.ConfigFile(); f != "" {
		logger.Debug("config loaded", "file", f)
	}
	return cfg, logger, nil
}

// newModelClient returns nil when no API key is configured.
func newModelClient(cfg *config.Config) *llm.Client {
	if cfg.LLM.APIKey == "" {
		return nil
	}
	return llm.NewClient(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		Referer:   cfg.LLM.Referer,
		Title:     cfg.LLM.Title,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
}

// newModerator assembles the pipeline. A nil client runs heuristics only.
func newModerator(cfg *config.Config, client *llm.Client, lexicons *lexicon.Store, logger *slog.Logger, opts ...moderation.Option) (*moderation.Moderator, error) {
	policy, err := moderation.ParseFallbackPolicy(cfg.Moderation.FallbackPolicy)
	if err != nil {
		return nil, err
	}
	modCfg := moderation.Config{
		MaxLength:     cfg.Moderation.MaxLength,
		DefaultLocale: cfg.Moderation.Locale,
		Fallback:      policy,
		ModelTimeout:  cfg.Moderation.ModelTimeout,
	}
	opts = append(opts, moderation.WithLogger(logger))

	// A typed nil pointer would not compare equal to nil inside the pipeline.
	var model moderation.Completer
	if client != nil {
		model = client
	}
	return moderation.New(modCfg, model, lexicons, opts...), nil
}

func loadLexicons(cfg *config.Config, logger *slog.Logger) (*lexicon.Store, error) {
	set, err := lexicon.LoadFile(cfg.Moderation.LexiconFile, cfg.Moderation.Locale)
	if err != nil {
		return nil, err
	}
	logger.Info("lexicon loaded", "path", cfg.Moderation.LexiconFile, "locales", set.Locales())
	return lexicon.NewStore(set, logger), nil
}
