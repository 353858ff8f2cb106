// Package store defines the persistence contract shared by every
// component: sources, output channels, content items, generated articles,
// scheduler state, chat-protocol session data, and settings.
package store

import (
	"context"
	"time"

	"github.com/pail-dev/pail/internal/models"
)

// ContentWindow bounds a query for ContentItems by original_date.
type ContentWindow struct {
	SourceIDs []string
	From      time.Time
	To        time.Time
}

// Repository is the full persistence surface used by every component.
// Grouped by entity, the way the teacher's storage.Repository interface
// is grouped, with maintenance methods (Migrate/Close) alongside CRUD.
type Repository interface {
	Migrate(ctx context.Context) error
	Close() error

	// Sources.
	UpsertSource(ctx context.Context, s *models.Source) error
	GetSourceByName(ctx context.Context, name string) (*models.Source, error)
	GetSourceByID(ctx context.Context, id string) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)
	ListEnabledSourcesByKind(ctx context.Context, kind string) ([]*models.Source, error)
	DeleteSourcesNotIn(ctx context.Context, names []string) (int64, error)
	UpdateSourceFetchState(ctx context.Context, id string, etag, lastModified *string, fetchedAt time.Time) error

	// Output channels.
	UpsertOutputChannel(ctx context.Context, c *models.OutputChannel, sourceNames []string) error
	GetOutputChannelBySlug(ctx context.Context, slug string) (*models.OutputChannel, error)
	ListEnabledOutputChannels(ctx context.Context) ([]*models.OutputChannel, error)
	DeleteOutputChannelsNotIn(ctx context.Context, slugs []string) (int64, error)
	UpdateLastGenerated(ctx context.Context, channelID string, t time.Time) error
	ChannelSourceNames(ctx context.Context, channelID string) ([]string, error)

	// Scheduler-seen bookkeeping.
	GetOrCreateFirstSeen(ctx context.Context, channelID string, now time.Time) (time.Time, error)

	// Content items.
	InsertContentItemIfAbsent(ctx context.Context, item *models.ContentItem) (inserted bool, err error)
	GetItemsInWindow(ctx context.Context, w ContentWindow) ([]*models.ContentItem, error)
	DeleteContentItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Generated articles.
	InsertGeneratedArticle(ctx context.Context, a *models.GeneratedArticle) error
	GetRecentArticles(ctx context.Context, channelID string, limit int) ([]*models.GeneratedArticle, error)
	GetArticleByID(ctx context.Context, id string) (*models.GeneratedArticle, error)

	// Settings.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	// Folder channel resolution.
	UpsertFolderChannel(ctx context.Context, folderSourceID string, peerID int64, name, username string) error
	ListFolderChannels(ctx context.Context, folderSourceID string) ([]*models.FolderChannel, error)

	// Chat session blob (single row, id=1).
	LoadChatSession(ctx context.Context) ([]byte, error)
	StoreChatSession(ctx context.Context, data []byte) error
}
