// Package models defines the persisted entities of the daemon: sources,
// output channels, ingested content, generated articles, scheduler state,
// chat-protocol session data, and key/value settings.
package models

import "time"

// Source kinds, per the tagged-variant design in SPEC_FULL.md §9.
const (
	SourceKindSyndication  = "syndication"
	SourceKindChatChannel  = "chat_channel"
	SourceKindChatGroup    = "chat_group"
	SourceKindChatFolder   = "chat_folder"
)

// Source is one configured input stream.
type Source struct {
	ID       string `gorm:"primaryKey"`
	Kind     string `gorm:"column:kind;index"`
	Name     string `gorm:"uniqueIndex"`
	Enabled  bool   `gorm:"default:true"`

	// Syndication fields.
	URL          *string
	PollInterval string `gorm:"default:'30m'"`
	MaxItems     int    `gorm:"default:200"`

	AuthType         *string
	AuthUsername     *string
	AuthPassword     *string
	AuthToken        *string
	AuthHeaderName   *string
	AuthHeaderValue  *string

	LastFetchedAt      *time.Time
	LastETag           *string
	LastModifiedHeader *string

	// Chat fields.
	ChatPeerID     *int64
	ChatUsername   *string
	ChatFolderName *string

	// Description is shown in the generator workspace's per-source
	// frontmatter, distinct from Name (the unique display/config handle).
	Description *string

	// ExcludeUsernames lists chat usernames (without a leading '@') to
	// skip when ingesting a chat_folder Source's resolved member
	// channels — a per-folder denylist, not a filter on Name.
	ExcludeUsernames StringSlice `gorm:"column:tg_exclude;type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Source) TableName() string { return "sources" }

// OutputChannel is one scheduled digest with its own sources, prompt, and
// feed slug.
type OutputChannel struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	Slug           string `gorm:"uniqueIndex"`
	Schedule       *string
	Prompt         string
	Model          *string
	Language       *string
	Enabled        bool `gorm:"default:true"`
	MarkChatRead   bool `gorm:"default:false"`
	LastGenerated  *time.Time

	Sources []Source `gorm:"many2many:output_channel_sources;"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OutputChannel) TableName() string { return "output_channels" }

// ContentItem kinds.
const (
	ContentTypeText    = "text"
	ContentTypeLink    = "link"
	ContentTypeMedia   = "media"
	ContentTypeForward = "forward"
)

// ContentItem is one normalized unit of ingested content.
type ContentItem struct {
	ID          string `gorm:"primaryKey"`
	SourceID    string `gorm:"column:source_id;index:idx_source_dedup,unique,priority:1"`
	IngestedAt  time.Time `gorm:"index"`
	OriginalDate time.Time `gorm:"index:idx_source_original_date"`
	ContentType string
	Title       *string
	Body        string
	URL         *string
	Author      *string
	Metadata    JSON `gorm:"type:text"`
	DedupKey    string `gorm:"column:dedup_key;index:idx_source_dedup,unique,priority:2"`
	UpstreamChanged bool `gorm:"default:false"`
}

func (ContentItem) TableName() string { return "content_items" }

// GeneratedArticle is one published digest output. Immutable once created.
type GeneratedArticle struct {
	ID              string `gorm:"primaryKey"`
	OutputChannelID string `gorm:"column:output_channel_id;index:idx_channel_generated"`
	GeneratedAt     time.Time `gorm:"index:idx_channel_generated"`
	CoversFrom      time.Time
	CoversTo        time.Time
	Title           string
	Topics          StringSlice `gorm:"type:text"`
	BodyMarkdown    string
	BodyHTML        string
	ContentItemIDs  StringSlice `gorm:"type:text"`
	GenerationLog   string
	ModelUsed       string
	TokenCount      *int64
}

func (GeneratedArticle) TableName() string { return "generated_articles" }

// SchedulerSeen records the instant the Scheduler first observed a channel
// whose last_generated is still NULL.
type SchedulerSeen struct {
	OutputChannelID string `gorm:"primaryKey;column:output_channel_id"`
	FirstSeenAt     time.Time
}

func (SchedulerSeen) TableName() string { return "scheduler_seen" }

// Setting is a singleton key/value row, used for the feed token bootstrap.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (Setting) TableName() string { return "settings" }

// FolderChannel records a channel currently resolved inside a configured
// chat_folder Source, so ingestion and workspace preparation can attribute
// items to the real child channel rather than the folder label.
type FolderChannel struct {
	FolderSourceID string `gorm:"primaryKey;column:folder_source_id"`
	ChannelPeerID  int64  `gorm:"primaryKey;column:channel_peer_id"`
	ChannelName    string
	// Username is empty for channels with no public @handle, which makes
	// them unreachable by the exclusion list (Source.ExcludeUsernames
	// matches on username only, per the original's own limitation).
	Username  string
	UpdatedAt time.Time
}

func (FolderChannel) TableName() string { return "tg_folder_channels" }

// ChatSessionBlob holds the chat protocol library's serialized session
// state (auth key, DC info, update state), persisted into the Store's own
// connection pool instead of a library-managed sqlite file. See
// SPEC_FULL.md §9 for why a second sqlite binding cannot be used here.
type ChatSessionBlob struct {
	ID   uint `gorm:"primaryKey"`
	Data []byte
}

func (ChatSessionBlob) TableName() string { return "chat_sessions" }
