// Package daemon wires every long-running component together: the store,
// the scheduler, the syndication poller, the chat listener, the feed
// server, and their shared graceful shutdown.
package daemon

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pail-dev/pail/internal/config"
	"github.com/pail-dev/pail/internal/feed"
	"github.com/pail-dev/pail/internal/ingest/chat"
	"github.com/pail-dev/pail/internal/ingest/syndication"
	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/pipeline"
	"github.com/pail-dev/pail/internal/reconciler"
	"github.com/pail-dev/pail/internal/scheduler"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/internal/store/sqlite"
	"github.com/pail-dev/pail/pkg/logger"
	"github.com/pail-dev/pail/pkg/ratelimit"
)

// shutdownJoinTimeout bounds how long Run waits for background loops to
// notice cancellation before giving up and exiting anyway.
const shutdownJoinTimeout = 10 * time.Second

// Run loads the store, reconciles config, bootstraps the feed token,
// starts every background loop, serves the feed over HTTP, and blocks
// until an OS signal requests shutdown.
func Run(cfg *config.Config, log *logger.Logger) error {
	repo, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("daemon: opening store: %w", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("daemon: migrating store: %w", err)
	}

	if err := reconciler.New(repo, log).Sync(ctx, cfg); err != nil {
		return fmt.Errorf("daemon: reconciling config: %w", err)
	}

	token, err := bootstrapFeedToken(ctx, repo, cfg.Pail.FeedToken, log)
	if err != nil {
		return fmt.Errorf("daemon: bootstrapping feed token: %w", err)
	}

	tz, err := resolveTimezone(cfg.Pail.Timezone)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	timeout, err := parseOpencodeTimeout(cfg.Opencode.Timeout)
	if err != nil {
		return fmt.Errorf("daemon: invalid opencode.timeout: %w", err)
	}

	pipe := pipeline.New(repo, pipeline.Options{
		Binary:       cfg.Opencode.Binary,
		DefaultModel: cfg.Opencode.DefaultModel,
		Timeout:      timeout,
		MaxRetries:   cfg.Opencode.MaxRetries,
		ExtraArgs:    cfg.Opencode.ExtraArgs,
		Timezone:     tz,
	}, log)

	sched := scheduler.New(repo, pipe.ScheduledRun, tz, cfg.Pail.MaxConcurrentGenerations, log)
	limiter := ratelimit.NewDefaultLimiter()
	poller := syndication.New(repo, limiter, log)

	var chatListener *chat.Listener
	if cfg.Pail.ChatEnabled {
		chatListener = chat.New(repo, cfg.Pail.ChatAPIID, cfg.Pail.ChatAPIHash, log)

		chatSources, err := chatSourcesOf(ctx, repo)
		if err != nil {
			return fmt.Errorf("daemon: loading chat sources: %w", err)
		}
		if err := chatListener.Prepare(ctx, chatSources); err != nil {
			log.Warn().Err(err).Msg("chat source resolution incomplete, continuing with a partial subscription table")
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runBackgroundLoops(ctx, sched, poller, chatListener, repo, cfg, log)
	}()

	retentionCancel := startRetentionLoop(ctx, repo, cfg.Pail.Retention, log)
	defer retentionCancel()

	srv := feed.NewServer(repo, token, log)
	httpServer := &http.Server{Addr: cfg.Pail.Listen, Handler: srv.Router()}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Pail.Listen).Msg("feed server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	waitForShutdown(ctx, cancel, serveErr, log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownJoinTimeout)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	select {
	case <-done:
	case <-time.After(shutdownJoinTimeout):
		log.Warn().Msg("background loops did not stop within timeout, exiting anyway")
	}

	return nil
}

// chatSourcesOf loads every enabled chat_channel, chat_group, and
// chat_folder source, the set the chat listener needs to resolve and
// subscribe to.
func chatSourcesOf(ctx context.Context, repo store.Repository) ([]*models.Source, error) {
	var all []*models.Source
	for _, kind := range []string{models.SourceKindChatChannel, models.SourceKindChatGroup, models.SourceKindChatFolder} {
		sources, err := repo.ListEnabledSourcesByKind(ctx, kind)
		if err != nil {
			return nil, err
		}
		all = append(all, sources...)
	}
	return all, nil
}

func runBackgroundLoops(ctx context.Context, sched *scheduler.Scheduler, poller *syndication.Poller, chatListener *chat.Listener, repo store.Repository, cfg *config.Config, log *logger.Logger) {
	go sched.Run(ctx)
	go poller.Run(ctx)

	if chatListener != nil {
		go func() {
			if err := chatListener.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("chat listener exited")
			}
		}()
	}

	<-ctx.Done()
}

// waitForShutdown blocks until SIGINT, SIGTERM, or a fatal serve error,
// then cancels ctx — stopping the scheduler's next tick, the poller's
// next fetch, and (per the read-only contract) never attempting to
// gracefully stop an in-flight generation subprocess; it is hard-killed
// along with its context.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, serveErr <-chan error, log *logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("feed server failed")
		}
	case <-ctx.Done():
	}

	cancel()
}

// bootstrapFeedToken resolves the feed auth token with the priority
// config value, then stored setting, then a freshly generated one,
// logging once at warn level only when a token is auto-generated.
func bootstrapFeedToken(ctx context.Context, repo store.Repository, configured string, log *logger.Logger) (string, error) {
	if configured != "" {
		return configured, nil
	}

	stored, ok, err := repo.GetSetting(ctx, "feed_token")
	if err != nil {
		return "", err
	}
	if ok && stored != "" {
		return stored, nil
	}

	token, err := generateFeedToken()
	if err != nil {
		return "", err
	}
	if err := repo.SetSetting(ctx, "feed_token", token); err != nil {
		return "", err
	}

	log.Warn().Str("feed_token", token).Msg("generated a new feed token; set pail.feed_token to pin it")
	return token, nil
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const tokenLength = 32

func generateFeedToken() (string, error) {
	b := make([]byte, tokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}

func resolveTimezone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}

func parseOpencodeTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 10 * time.Minute, nil
	}
	return time.ParseDuration(s)
}

// startRetentionLoop runs cleanup once an hour, deleting content items
// older than the configured retention window.
func startRetentionLoop(ctx context.Context, repo store.Repository, retention string, log *logger.Logger) context.CancelFunc {
	loopCtx, cancel := context.WithCancel(ctx)

	retentionDur, err := config.ParseHumanDuration(retention)
	if err != nil {
		log.Warn().Err(err).Str("retention", retention).Msg("invalid retention, defaulting to 7 days")
		retentionDur = 7 * 24 * time.Hour
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		runCleanup := func() {
			cutoff := time.Now().UTC().Add(-retentionDur)
			n, err := repo.DeleteContentItemsOlderThan(loopCtx, cutoff)
			if err != nil {
				log.Error().Err(err).Msg("retention cleanup failed")
				return
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("retention cleanup removed old content items")
			}
		}

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				runCleanup()
			}
		}
	}()

	return cancel
}
