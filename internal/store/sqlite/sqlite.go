// Package sqlite implements store.Repository against SQLite via GORM,
// using the pure-Go glebarez/sqlite driver (no cgo) — see SPEC_FULL.md §9
// for why that choice is load-bearing rather than incidental.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
)

// Store is the GORM-backed store.Repository implementation.
type Store struct {
	db  *gorm.DB
	dsn string
}

var _ store.Repository = (*Store)(nil)

// Open opens (creating if absent) the sqlite database at dsn.
func Open(dsn string) (*Store, error) {
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	return &Store{db: db, dsn: dsn}, nil
}

// Migrate applies every embedded schema script via the hand-rolled runner,
// then deliberately does NOT call gorm's AutoMigrate — the schema is owned
// by the SQL scripts, not by struct reflection, per SPEC_FULL.md §6.7.
func (s *Store) Migrate(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: getting raw connection: %w", err)
	}
	return migrate(ctx, sqlDB)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Sources ---

func (s *Store) UpsertSource(ctx context.Context, src *models.Source) error {
	var existing models.Source
	err := s.db.WithContext(ctx).Where("name = ?", src.Name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if src.ID == "" {
			return errors.New("store: UpsertSource: new source requires an ID")
		}
		return s.db.WithContext(ctx).Create(src).Error
	case err != nil:
		return err
	default:
		src.ID = existing.ID
		src.CreatedAt = existing.CreatedAt
		return s.db.WithContext(ctx).Model(&models.Source{}).Where("id = ?", src.ID).Updates(src).Error
	}
}

func (s *Store) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	var src models.Source
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *Store) GetSourceByID(ctx context.Context, id string) (*models.Source, error) {
	var src models.Source
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	err := s.db.WithContext(ctx).Find(&sources).Error
	return sources, err
}

func (s *Store) ListEnabledSourcesByKind(ctx context.Context, kind string) ([]*models.Source, error) {
	var sources []*models.Source
	err := s.db.WithContext(ctx).Where("kind = ? AND enabled = ?", kind, true).Find(&sources).Error
	return sources, err
}

func (s *Store) DeleteSourcesNotIn(ctx context.Context, names []string) (int64, error) {
	tx := s.db.WithContext(ctx)
	if len(names) == 0 {
		res := tx.Where("1 = 1").Delete(&models.Source{})
		return res.RowsAffected, res.Error
	}
	res := tx.Where("name NOT IN ?", names).Delete(&models.Source{})
	return res.RowsAffected, res.Error
}

func (s *Store) UpdateSourceFetchState(ctx context.Context, id string, etag, lastModified *string, fetchedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Source{}).Where("id = ?", id).Updates(map[string]any{
		"last_e_tag":           etag,
		"last_modified_header": lastModified,
		"last_fetched_at":      fetchedAt,
	}).Error
}

// --- Output channels ---

func (s *Store) UpsertOutputChannel(ctx context.Context, c *models.OutputChannel, sourceNames []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.OutputChannel
		err := tx.Where("slug = ?", c.Slug).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if c.ID == "" {
				return errors.New("store: UpsertOutputChannel: new channel requires an ID")
			}
			if err := tx.Create(c).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			c.ID = existing.ID
			c.LastGenerated = existing.LastGenerated
			c.CreatedAt = existing.CreatedAt
			if err := tx.Model(&models.OutputChannel{}).Where("id = ?", c.ID).Updates(map[string]any{
				"name":           c.Name,
				"schedule":       c.Schedule,
				"prompt":         c.Prompt,
				"model":          c.Model,
				"language":       c.Language,
				"enabled":        c.Enabled,
				"mark_chat_read": c.MarkChatRead,
			}).Error; err != nil {
				return err
			}
		}

		var sources []models.Source
		if err := tx.Where("name IN ?", sourceNames).Find(&sources).Error; err != nil {
			return err
		}
		return tx.Model(c).Association("Sources").Replace(sources)
	})
}

func (s *Store) GetOutputChannelBySlug(ctx context.Context, slug string) (*models.OutputChannel, error) {
	var c models.OutputChannel
	err := s.db.WithContext(ctx).Preload("Sources").Where("slug = ?", slug).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListEnabledOutputChannels(ctx context.Context) ([]*models.OutputChannel, error) {
	var channels []*models.OutputChannel
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&channels).Error
	return channels, err
}

func (s *Store) DeleteOutputChannelsNotIn(ctx context.Context, slugs []string) (int64, error) {
	tx := s.db.WithContext(ctx)
	if len(slugs) == 0 {
		res := tx.Where("1 = 1").Delete(&models.OutputChannel{})
		return res.RowsAffected, res.Error
	}
	res := tx.Where("slug NOT IN ?", slugs).Delete(&models.OutputChannel{})
	return res.RowsAffected, res.Error
}

func (s *Store) UpdateLastGenerated(ctx context.Context, channelID string, t time.Time) error {
	return s.db.WithContext(ctx).Model(&models.OutputChannel{}).
		Where("id = ?", channelID).Update("last_generated", t).Error
}

func (s *Store) ChannelSourceNames(ctx context.Context, channelID string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Table("sources").
		Joins("JOIN output_channel_sources ocs ON ocs.source_id = sources.id").
		Where("ocs.output_channel_id = ?", channelID).
		Pluck("sources.name", &names).Error
	return names, err
}

// --- Scheduler-seen ---

func (s *Store) GetOrCreateFirstSeen(ctx context.Context, channelID string, now time.Time) (time.Time, error) {
	var seen models.SchedulerSeen
	err := s.db.WithContext(ctx).Where("output_channel_id = ?", channelID).First(&seen).Error
	if err == nil {
		return seen.FirstSeenAt, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, err
	}
	seen = models.SchedulerSeen{OutputChannelID: channelID, FirstSeenAt: now}
	if err := s.db.WithContext(ctx).Create(&seen).Error; err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// --- Content items ---

// InsertContentItemIfAbsent enforces (source_id, dedup_key) uniqueness
// (I1). On collision, the existing row is left untouched except that
// upstream_changed may latch from false to true (I2) — never the reverse,
// and never an overwrite of title/body.
func (s *Store) InsertContentItemIfAbsent(ctx context.Context, item *models.ContentItem) (bool, error) {
	var existing models.ContentItem
	err := s.db.WithContext(ctx).
		Where("source_id = ? AND dedup_key = ?", item.SourceID, item.DedupKey).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
			// Lost the race against a concurrent insert — treat as a
			// collision, not a failure.
			if isUniqueConstraintErr(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	default:
		if !existing.UpstreamChanged {
			titleChanged := (item.Title == nil) != (existing.Title == nil) ||
				(item.Title != nil && existing.Title != nil && *item.Title != *existing.Title)
			if titleChanged || item.Body != existing.Body {
				if err := s.db.WithContext(ctx).Model(&models.ContentItem{}).
					Where("id = ?", existing.ID).Update("upstream_changed", true).Error; err != nil {
					return false, err
				}
			}
		}
		return false, nil
	}
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "constraint")
}

func (s *Store) GetItemsInWindow(ctx context.Context, w store.ContentWindow) ([]*models.ContentItem, error) {
	var items []*models.ContentItem
	if len(w.SourceIDs) == 0 {
		return items, nil
	}
	err := s.db.WithContext(ctx).
		Where("source_id IN ? AND original_date >= ? AND original_date < ?", w.SourceIDs, w.From, w.To).
		Order("original_date ASC").
		Find(&items).Error
	return items, err
}

func (s *Store) DeleteContentItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("ingested_at < ?", cutoff).Delete(&models.ContentItem{})
	return res.RowsAffected, res.Error
}

// --- Generated articles ---

func (s *Store) InsertGeneratedArticle(ctx context.Context, a *models.GeneratedArticle) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Store) GetRecentArticles(ctx context.Context, channelID string, limit int) ([]*models.GeneratedArticle, error) {
	var articles []*models.GeneratedArticle
	err := s.db.WithContext(ctx).
		Where("output_channel_id = ?", channelID).
		Order("generated_at DESC").
		Limit(limit).
		Find(&articles).Error
	return articles, err
}

func (s *Store) GetArticleByID(ctx context.Context, id string) (*models.GeneratedArticle, error) {
	var a models.GeneratedArticle
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var row models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	row := models.Setting{Key: key, Value: value}
	return s.db.WithContext(ctx).Save(&row).Error
}

// --- Folder channels ---

func (s *Store) UpsertFolderChannel(ctx context.Context, folderSourceID string, peerID int64, name, username string) error {
	row := models.FolderChannel{
		FolderSourceID: folderSourceID,
		ChannelPeerID:  peerID,
		ChannelName:    name,
		Username:       username,
		UpdatedAt:      time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) ListFolderChannels(ctx context.Context, folderSourceID string) ([]*models.FolderChannel, error) {
	var rows []*models.FolderChannel
	err := s.db.WithContext(ctx).Where("folder_source_id = ?", folderSourceID).Find(&rows).Error
	return rows, err
}

// --- Chat session ---

func (s *Store) LoadChatSession(ctx context.Context) ([]byte, error) {
	var blob models.ChatSessionBlob
	err := s.db.WithContext(ctx).Where("id = ?", 1).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

func (s *Store) StoreChatSession(ctx context.Context, data []byte) error {
	blob := models.ChatSessionBlob{ID: 1, Data: data}
	return s.db.WithContext(ctx).Save(&blob).Error
}
