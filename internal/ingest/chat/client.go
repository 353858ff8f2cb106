package chat

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
)

// Listener owns the MTProto client connection, the update dispatcher, and
// the subscription map from Telegram chat IDs to pail source IDs.
type Listener struct {
	repo    store.Repository
	client  *telegram.Client
	raw     *tg.Client
	gaps    *updates.Manager
	log     *logger.Logger
	apiID   int
	apiHash string

	subscriptions map[int64][]string
	channelNames  map[int64]string
	accessHashes  map[int64]int64
}

// New builds a Listener without connecting. Connect/Run drives the
// underlying MTProto connection.
func New(repo store.Repository, apiID int, apiHash string, log *logger.Logger) *Listener {
	l := &Listener{repo: repo, apiID: apiID, apiHash: apiHash, log: log.WithComponent("chat"), accessHashes: make(map[int64]int64)}

	l.gaps = updates.New(updates.Config{
		Handler: telegram.UpdateHandlerFunc(l.handleUpdates),
	})

	l.client = telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: newSessionStorage(repo),
		UpdateHandler:  l.gaps,
	})
	l.raw = l.client.API()

	return l
}

// Run connects and blocks servicing updates until ctx is cancelled. It is
// the long-running goroutine the daemon spawns alongside the scheduler
// and syndication poller.
func (l *Listener) Run(ctx context.Context) error {
	return l.client.Run(ctx, func(ctx context.Context) error {
		status, err := l.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("chat: checking auth status: %w", err)
		}
		if !status.Authorized {
			l.log.Warn().Msg("chat session not authorized, run `pail tg login`")
			<-ctx.Done()
			return ctx.Err()
		}

		self, err := l.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("chat: resolving self: %w", err)
		}

		l.log.Info().Int64("user_id", self.ID).Msg("chat session connected")

		return l.gaps.Run(ctx, l.raw, self.ID, updates.AuthOptions{
			IsBot: false,
			OnStart: func(ctx context.Context) {
				l.log.Info().Msg("update gap manager started")
			},
		})
	})
}

// SetSubscriptions replaces the chat-id to source-ids routing table used
// by incoming update handlers, recomputed whenever config is reconciled.
func (l *Listener) SetSubscriptions(subs map[int64][]string) {
	l.subscriptions = subs
}

// SetChannelNames records the display name of every resolved folder
// channel, keyed by chat id, so ingested messages can be attributed to
// the channel they actually came from rather than just the folder
// source that subscribed to it.
func (l *Listener) SetChannelNames(names map[int64]string) {
	l.channelNames = names
}

// rememberChats caches the access hash of every channel in chats, so
// later raw API calls that only have a bare channel id (e.g. marking a
// channel read) can still build a valid InputChannel.
func (l *Listener) rememberChats(chats []tg.ChatClass) {
	for _, c := range chats {
		if ch, ok := c.(*tg.Channel); ok {
			l.accessHashes[ch.ID] = ch.AccessHash
		}
	}
}

// Prepare resolves usernames and folder memberships for every chat
// source, then computes and installs the subscription and channel-name
// routing tables. The daemon calls this once before starting Run, and
// again whenever the source configuration changes.
func (l *Listener) Prepare(ctx context.Context, sources []*models.Source) error {
	var direct, folders []*models.Source
	for _, src := range sources {
		if src.Kind == models.SourceKindChatFolder {
			folders = append(folders, src)
		} else {
			direct = append(direct, src)
		}
	}

	if err := l.WarmPeerCache(ctx); err != nil {
		l.log.Warn().Err(err).Msg("failed to warm peer cache")
	}

	if err := l.ResolveUsernames(ctx, direct); err != nil {
		return fmt.Errorf("chat: resolving usernames: %w", err)
	}
	if err := l.ResolveFolders(ctx, folders); err != nil {
		return fmt.Errorf("chat: resolving folders: %w", err)
	}

	folderChannels := make(map[string][]*models.FolderChannel)
	for _, src := range folders {
		channels, err := l.repo.ListFolderChannels(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("chat: listing folder channels for %s: %w", src.Name, err)
		}
		folderChannels[src.ID] = channels
	}

	l.SetSubscriptions(BuildSubscriptionMap(direct, folderChannels))
	l.SetChannelNames(BuildChannelNameMap(folderChannels))
	return nil
}
