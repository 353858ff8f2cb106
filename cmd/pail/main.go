// Command pail runs the digest daemon, or a one-shot generation/validation
// subcommand against the same configuration file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pail-dev/pail/internal/config"
	"github.com/pail-dev/pail/internal/daemon"
	"github.com/pail-dev/pail/internal/ingest/chat"
	"github.com/pail-dev/pail/internal/ingest/syndication"
	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/pipeline"
	"github.com/pail-dev/pail/internal/reconciler"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/internal/store/sqlite"
	"github.com/pail-dev/pail/pkg/logger"
	"github.com/pail-dev/pail/pkg/ratelimit"
)

var (
	cfgPath string
	cfg     *config.Config
	log     *logger.Logger
)

// configErr and storeErr tag an error with its origin so exitCodeFor can
// tell a bad config file from a broken database from everything else.
type configErr struct{ err error }

func (e configErr) Error() string { return e.err.Error() }
func (e configErr) Unwrap() error { return e.err }

type storeErr struct{ err error }

func (e storeErr) Error() string { return e.err.Error() }
func (e storeErr) Unwrap() error { return e.err }

func main() {
	root := &cobra.Command{
		Use:   "pail",
		Short: "Self-hosted digest generation daemon",
		RunE:  runDaemon,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.toml", "path to config.toml")

	root.AddCommand(validateCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(interactiveCmd())
	root.AddCommand(tgCmd())

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return configErr{err}
	}
	log = logger.New(logger.Config{Level: cfg.Pail.LogLevel, Format: cfg.Pail.LogFormat, Output: "stdout"})
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd, args); err != nil {
		return err
	}
	return daemon.Run(cfg, log)
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file without touching the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(cfgPath)
			if err != nil {
				return configErr{err}
			}
			if err := config.Validate(c); err != nil {
				return configErr{err}
			}
			fmt.Println("configuration is valid")
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	var since string
	var from, to, output string

	cmd := &cobra.Command{
		Use:   "generate <slug>",
		Short: "Run an ad-hoc generation for one output channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, args); err != nil {
				return err
			}
			return runGenerate(args[0], since, from, to, output, false)
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "look back this duration (e.g. 48h)")
	cmd.Flags().StringVar(&from, "from", "", "window start, RFC3339")
	cmd.Flags().StringVar(&to, "to", "", "window end, RFC3339")
	cmd.Flags().StringVar(&output, "output", "", "write the article body to this path instead of the store")
	return cmd
}

func interactiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive <slug>",
		Short: "Prepare a workspace and hand it to an interactive generator session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, args); err != nil {
				return err
			}
			return runGenerate(args[0], "", "", "", "", true)
		},
	}
	return cmd
}

// runGenerate is a self-contained one-shot: open/create the store,
// reconcile config, fetch syndication sources in the channel, fetch
// bounded chat history for chat sources (with inter-call pacing), collect
// the window, invoke the pipeline, and persist — it never relies on a
// daemon having already populated the store.
func runGenerate(slug, since, from, to, output string, interactive bool) error {
	repo, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return storeErr{err}
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil {
		return storeErr{err}
	}

	if err := reconciler.New(repo, log).Sync(ctx, cfg); err != nil {
		return fmt.Errorf("reconciling config: %w", err)
	}

	ch, err := repo.GetOutputChannelBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("no output channel named %q", slug)
	}

	tz, err := time.LoadLocation(cfg.Pail.Timezone)
	if err != nil {
		tz = time.UTC
	}

	timeout, err := time.ParseDuration(cfg.Opencode.Timeout)
	if err != nil {
		timeout = 10 * time.Minute
	}

	override, err := buildOverride(since, from, to)
	if err != nil {
		return err
	}

	if err := collectChannelSources(ctx, repo, ch, override); err != nil {
		log.Warn().Err(err).Str("channel", ch.Slug).Msg("ingestion pass incomplete, generating from whatever is already stored")
	}

	pipe := pipeline.New(repo, pipeline.Options{
		Binary:       cfg.Opencode.Binary,
		DefaultModel: cfg.Opencode.DefaultModel,
		Timeout:      timeout,
		MaxRetries:   cfg.Opencode.MaxRetries,
		ExtraArgs:    cfg.Opencode.ExtraArgs,
		Timezone:     tz,
	}, log)

	if interactive {
		dir, err := pipe.PrepareInteractive(ctx, ch, override)
		if err != nil {
			return err
		}
		fmt.Printf("workspace ready: %s\n", dir)
		fmt.Println("point your generator at this directory; nothing is cleaned up automatically")
		return nil
	}

	produced, err := pipe.Run(ctx, ch, override, time.Now().UTC())
	if err != nil {
		return err
	}
	if !produced {
		fmt.Println("window was empty, nothing generated")
		return nil
	}

	if output != "" {
		articles, err := repo.GetRecentArticles(ctx, ch.ID, 1)
		if err != nil {
			return err
		}
		if len(articles) > 0 {
			if err := os.WriteFile(output, []byte(articles[0].BodyMarkdown), 0o644); err != nil {
				return fmt.Errorf("writing --output: %w", err)
			}
		}
	}

	fmt.Println("generation complete")
	return nil
}

// collectChannelSources performs the CLI's one explicit exception to the
// daemon's no-backfill ingestion: polling every syndication source in ch
// right now (bypassing poll_interval), and backfilling chat sources with
// messages back to the computed window start, with pacing between calls.
func collectChannelSources(ctx context.Context, repo store.Repository, ch *models.OutputChannel, override *pipeline.WindowOverride) error {
	names, err := repo.ChannelSourceNames(ctx, ch.ID)
	if err != nil {
		return fmt.Errorf("loading channel sources: %w", err)
	}

	var syndicationSources, chatSources []*models.Source
	for _, name := range names {
		src, err := repo.GetSourceByName(ctx, name)
		if err != nil {
			return fmt.Errorf("loading source %q: %w", name, err)
		}
		if src == nil {
			continue
		}
		if src.Kind == models.SourceKindSyndication {
			syndicationSources = append(syndicationSources, src)
		} else {
			chatSources = append(chatSources, src)
		}
	}

	if len(syndicationSources) > 0 {
		limiter := ratelimit.NewDefaultLimiter()
		poller := syndication.New(repo, limiter, log)
		for _, src := range syndicationSources {
			if _, err := poller.FetchNow(ctx, src); err != nil {
				log.Warn().Err(err).Str("source", src.Name).Msg("failed to fetch syndication source")
			}
		}
	}

	if len(chatSources) > 0 && cfg.Pail.ChatEnabled {
		from, _ := pipeline.WindowFor(ch.LastGenerated, override, time.Now().UTC())

		listener := chat.New(repo, cfg.Pail.ChatAPIID, cfg.Pail.ChatAPIHash, log)
		if err := listener.Prepare(ctx, chatSources); err != nil {
			return fmt.Errorf("resolving chat sources: %w", err)
		}
		if err := listener.FetchHistory(ctx, chatSources, from); err != nil {
			return fmt.Errorf("fetching chat history: %w", err)
		}
	}

	return nil
}

func buildOverride(since, from, to string) (*pipeline.WindowOverride, error) {
	switch {
	case since != "":
		d, err := time.ParseDuration(since)
		if err != nil {
			return nil, fmt.Errorf("invalid --since: %w", err)
		}
		return &pipeline.WindowOverride{Since: d}, nil
	case from != "" && to != "":
		f, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return nil, fmt.Errorf("invalid --from: %w", err)
		}
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return nil, fmt.Errorf("invalid --to: %w", err)
		}
		return &pipeline.WindowOverride{From: f, To: t}, nil
	default:
		return nil, nil
	}
}

func tgCmd() *cobra.Command {
	root := &cobra.Command{Use: "tg", Short: "Manage the Telegram session"}

	var phone string
	login := &cobra.Command{
		Use:   "login",
		Short: "Authenticate a Telegram session interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, args); err != nil {
				return err
			}
			repo, err := sqlite.Open(cfg.DBPath())
			if err != nil {
				return storeErr{err}
			}
			defer repo.Close()
			if err := repo.Migrate(context.Background()); err != nil {
				return storeErr{err}
			}
			l := chat.New(repo, cfg.Pail.ChatAPIID, cfg.Pail.ChatAPIHash, log)
			return l.Login(context.Background(), phone)
		},
	}
	login.Flags().StringVar(&phone, "phone", "", "phone number, with country code")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print Telegram session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, args); err != nil {
				return err
			}
			repo, err := sqlite.Open(cfg.DBPath())
			if err != nil {
				return storeErr{err}
			}
			defer repo.Close()
			l := chat.New(repo, cfg.Pail.ChatAPIID, cfg.Pail.ChatAPIHash, log)
			return l.Status(context.Background())
		},
	}

	root.AddCommand(login, status)
	return root
}

// exitCodeFor maps an error to the process exit code documented for the
// CLI: 1 for config errors, 2 for store errors, 3 for anything else.
func exitCodeFor(err error) int {
	var ce configErr
	var se storeErr
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ce):
		return 1
	case errors.As(err, &se):
		return 2
	default:
		return 3
	}
}
