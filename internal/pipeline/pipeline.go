// Package pipeline implements the generation pipeline: collecting a
// channel's window of content, assembling a workspace for the generator
// subprocess, invoking it, parsing its output, and persisting the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
)

// retryDelay is the fixed pause between a failed attempt and its single
// retry, covering phases 2 through 4 (workspace, invoke, parse).
const retryDelay = 30 * time.Second

// Options configures the generator subprocess and its retry budget.
type Options struct {
	Binary       string
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int
	ExtraArgs    []string
	Timezone     *time.Location
}

// Pipeline runs end-to-end generations for output channels.
type Pipeline struct {
	repo store.Repository
	opt  Options
	log  *logger.Logger
}

func New(repo store.Repository, opt Options, log *logger.Logger) *Pipeline {
	if opt.MaxRetries < 1 {
		opt.MaxRetries = 1
	}
	if opt.Timezone == nil {
		opt.Timezone = time.UTC
	}
	return &Pipeline{repo: repo, opt: opt, log: log.WithComponent("pipeline")}
}

// ScheduledRun adapts Run to scheduler.RunFunc's signature for wiring into
// scheduler.New. tick is the wall-clock instant the schedule fired at, not
// the instant this function happens to run.
func (p *Pipeline) ScheduledRun(ctx context.Context, ch *models.OutputChannel, tick time.Time) (bool, error) {
	return p.Run(ctx, ch, nil, tick)
}

// Run executes one generation for ch. override is nil for scheduled runs,
// in which case tick is the due instant and becomes the window's `to` and
// (on success) the new last_generated — never the time the run actually
// finishes executing, which can lag tick by the retry/backoff delay. A
// non-nil override drives ad-hoc `generate`/`interactive` runs instead, and
// tick is ignored in favor of the override's own window.
func (p *Pipeline) Run(ctx context.Context, ch *models.OutputChannel, override *WindowOverride, tick time.Time) (bool, error) {
	log := p.log.WithChannel(ch.Slug)

	sourceNames, err := p.repo.ChannelSourceNames(ctx, ch.ID)
	if err != nil {
		return false, fmt.Errorf("pipeline: loading source names for %s: %w", ch.Slug, err)
	}

	sources := make([]*models.Source, 0, len(sourceNames))
	sourceIDs := make([]string, 0, len(sourceNames))
	for _, name := range sourceNames {
		s, err := p.repo.GetSourceByName(ctx, name)
		if err != nil {
			return false, fmt.Errorf("pipeline: loading source %q: %w", name, err)
		}
		sources = append(sources, s)
		sourceIDs = append(sourceIDs, s.ID)
	}

	from, to, isOverrideRun := resolveWindow(ch.LastGenerated, override, tick)

	items, err := p.repo.GetItemsInWindow(ctx, store.ContentWindow{SourceIDs: sourceIDs, From: from, To: to})
	if err != nil {
		return false, fmt.Errorf("pipeline: loading window items for %s: %w", ch.Slug, err)
	}

	if len(items) == 0 {
		log.Debug().Msg("window empty, skipping generation")
		return false, nil
	}

	article, err := p.attempt(ctx, log, ch, sources, items, from, to)
	if err != nil {
		return false, err
	}

	if err := p.repo.InsertGeneratedArticle(ctx, article); err != nil {
		return false, fmt.Errorf("pipeline: persisting article for %s: %w", ch.Slug, err)
	}

	if !isOverrideRun {
		if err := p.repo.UpdateLastGenerated(ctx, ch.ID, to); err != nil {
			return false, fmt.Errorf("pipeline: updating last_generated for %s: %w", ch.Slug, err)
		}
	}

	log.Info().Str("article_id", article.ID).Msg("generation complete")
	return true, nil
}

// PrepareInteractive builds a workspace for ch (including AGENTS.md) and
// returns its path without invoking the generator or cleaning it up — the
// `interactive` command hands this directory to a human-driven session.
// The caller owns deleting the directory when done.
func (p *Pipeline) PrepareInteractive(ctx context.Context, ch *models.OutputChannel, override *WindowOverride) (dir string, err error) {
	sourceNames, err := p.repo.ChannelSourceNames(ctx, ch.ID)
	if err != nil {
		return "", fmt.Errorf("pipeline: loading source names for %s: %w", ch.Slug, err)
	}

	sources := make([]*models.Source, 0, len(sourceNames))
	sourceIDs := make([]string, 0, len(sourceNames))
	for _, name := range sourceNames {
		s, err := p.repo.GetSourceByName(ctx, name)
		if err != nil {
			return "", fmt.Errorf("pipeline: loading source %q: %w", name, err)
		}
		sources = append(sources, s)
		sourceIDs = append(sourceIDs, s.ID)
	}

	now := time.Now().UTC()
	from, to, _ := resolveWindow(ch.LastGenerated, override, now)

	items, err := p.repo.GetItemsInWindow(ctx, store.ContentWindow{SourceIDs: sourceIDs, From: from, To: to})
	if err != nil {
		return "", fmt.Errorf("pipeline: loading window items for %s: %w", ch.Slug, err)
	}

	dir, _, err = prepareWorkspace(ch, p.opt.Timezone.String(), from, to, sources, items, ch.Prompt, true)
	return dir, err
}

// attempt runs phases 2 through 4 once, retrying a single time after
// retryDelay on any failure. A second failure is GenerationFatal: no
// article is persisted and last_generated is left untouched.
func (p *Pipeline) attempt(ctx context.Context, log *logger.Logger, ch *models.OutputChannel, sources []*models.Source, items []*models.ContentItem, from, to time.Time) (*models.GeneratedArticle, error) {
	var lastErr error
	for try := 0; try < p.opt.MaxRetries+1; try++ {
		if try > 0 {
			log.Warn().Err(lastErr).Msg("generation attempt failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		article, err := p.runOnce(ctx, log, ch, sources, items, from, to)
		if err == nil {
			return article, nil
		}
		lastErr = err
	}

	log.Error().Err(lastErr).Msg("generation failed permanently")
	return nil, fmt.Errorf("pipeline: generation failed for %s: %w", ch.Slug, lastErr)
}

func (p *Pipeline) runOnce(ctx context.Context, log *logger.Logger, ch *models.OutputChannel, sources []*models.Source, items []*models.ContentItem, from, to time.Time) (*models.GeneratedArticle, error) {
	editorial := ch.Prompt

	dir, cleanup, err := prepareWorkspace(ch, p.opt.Timezone.String(), from, to, sources, items, editorial, false)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	model := p.opt.DefaultModel
	if ch.Model != nil && *ch.Model != "" {
		model = *ch.Model
	}

	result, err := runGenerator(ctx, p.opt.Binary, model, dir, p.opt.ExtraArgs, p.opt.Timeout)
	if err != nil {
		return nil, err
	}
	if result.TimedOut {
		log.Warn().Dur("timeout", p.opt.Timeout).Msg("generator timed out")
	} else if result.ExitCode != 0 {
		log.Warn().Int("exit_code", result.ExitCode).Str("stderr", result.Stderr).Msg("generator exited non-zero")
	}

	parsed, err := parseOutput(dir, result.Stdout+"\n"+result.Stderr)
	if err != nil {
		return nil, err
	}

	itemIDs := make(models.StringSlice, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
	}

	return &models.GeneratedArticle{
		ID:              uuid.NewString(),
		OutputChannelID: ch.ID,
		GeneratedAt:     time.Now().UTC(),
		CoversFrom:      from,
		CoversTo:        to,
		Title:           parsed.Title,
		Topics:          parsed.Topics,
		BodyMarkdown:    parsed.BodyMD,
		BodyHTML:        parsed.BodyHTML,
		ContentItemIDs:  itemIDs,
		GenerationLog:   result.Stdout,
		ModelUsed:       model,
	}, nil
}
