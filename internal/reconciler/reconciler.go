// Package reconciler syncs the declarative config file into the store:
// upserting sources and output channels, then deleting whatever the
// config no longer names.
package reconciler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pail-dev/pail/internal/config"
	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
)

type Reconciler struct {
	repo store.Repository
	log  *logger.Logger
}

func New(repo store.Repository, log *logger.Logger) *Reconciler {
	return &Reconciler{repo: repo, log: log.WithComponent("reconciler")}
}

// Sync upserts every configured source and output channel, then deletes
// any source or channel the store has that the config no longer names.
func (r *Reconciler) Sync(ctx context.Context, cfg *config.Config) error {
	for _, sc := range cfg.Sources {
		if err := r.upsertSource(ctx, sc); err != nil {
			return fmt.Errorf("reconciler: upserting source %q: %w", sc.Name, err)
		}
	}

	names := make([]string, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		names = append(names, sc.Name)
	}
	deletedSources, err := r.repo.DeleteSourcesNotIn(ctx, names)
	if err != nil {
		return fmt.Errorf("reconciler: cleaning up sources: %w", err)
	}
	if deletedSources > 0 {
		r.log.Info().Int64("count", deletedSources).Msg("removed sources no longer in config")
	}

	slugs := make([]string, 0, len(cfg.OutputChannels))
	for _, oc := range cfg.OutputChannels {
		if err := r.upsertChannel(ctx, oc); err != nil {
			return fmt.Errorf("reconciler: upserting channel %q: %w", oc.Slug, err)
		}
		slugs = append(slugs, oc.Slug)
	}

	deletedChannels, err := r.repo.DeleteOutputChannelsNotIn(ctx, slugs)
	if err != nil {
		return fmt.Errorf("reconciler: cleaning up channels: %w", err)
	}
	if deletedChannels > 0 {
		r.log.Info().Int64("count", deletedChannels).Msg("removed output channels no longer in config")
	}

	return nil
}

func (r *Reconciler) upsertSource(ctx context.Context, sc config.SourceConfig) error {
	existing, err := r.repo.GetSourceByName(ctx, sc.Name)
	if err != nil {
		return err
	}

	s := &models.Source{
		ID:           uuid.NewString(),
		Kind:         sc.Type,
		Name:         sc.Name,
		Enabled:      true,
		PollInterval: sc.PollInterval,
		MaxItems:     sc.MaxItems,
	}
	if existing != nil {
		s.ID = existing.ID
		s.LastFetchedAt = existing.LastFetchedAt
		s.LastETag = existing.LastETag
		s.LastModifiedHeader = existing.LastModifiedHeader
	}
	if sc.Enabled != nil {
		s.Enabled = *sc.Enabled
	}
	if sc.URL != "" {
		s.URL = &sc.URL
	}
	if sc.Username != "" {
		s.ChatUsername = &sc.Username
	}
	if sc.FolderName != "" {
		s.ChatFolderName = &sc.FolderName
	}
	if sc.PeerID != 0 {
		s.ChatPeerID = &sc.PeerID
	}
	if sc.Description != "" {
		s.Description = &sc.Description
	}
	if len(sc.Exclude) > 0 {
		s.ExcludeUsernames = models.StringSlice(sc.Exclude)
	}
	if sc.Auth != nil {
		applyAuth(s, sc.Auth)
	}

	return r.repo.UpsertSource(ctx, s)
}

func applyAuth(s *models.Source, a *config.SourceAuthConfig) {
	if a.Type != "" {
		s.AuthType = &a.Type
	}
	if a.Username != "" {
		s.AuthUsername = &a.Username
	}
	if a.Password != "" {
		s.AuthPassword = &a.Password
	}
	if a.Token != "" {
		s.AuthToken = &a.Token
	}
	if a.HeaderName != "" {
		s.AuthHeaderName = &a.HeaderName
	}
	if a.HeaderValue != "" {
		s.AuthHeaderValue = &a.HeaderValue
	}
}

func (r *Reconciler) upsertChannel(ctx context.Context, oc config.OutputChannelConfig) error {
	existing, err := r.repo.GetOutputChannelBySlug(ctx, oc.Slug)
	if err != nil {
		return err
	}

	ch := &models.OutputChannel{
		ID:           uuid.NewString(),
		Name:         oc.Name,
		Slug:         oc.Slug,
		Prompt:       oc.Prompt,
		Enabled:      true,
		MarkChatRead: oc.MarkChatRead,
	}
	if existing != nil {
		ch.ID = existing.ID
		ch.LastGenerated = existing.LastGenerated
	}
	if oc.Schedule != "" {
		ch.Schedule = &oc.Schedule
	}
	if oc.Model != "" {
		ch.Model = &oc.Model
	}
	if oc.Language != "" {
		ch.Language = &oc.Language
	}
	if oc.Enabled != nil {
		ch.Enabled = *oc.Enabled
	}

	return r.repo.UpsertOutputChannel(ctx, ch, oc.Sources)
}
