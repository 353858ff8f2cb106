package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/pail-dev/pail/internal/models"
)

// ResolveUsernames fills in ChatPeerID for chat_channel/chat_group Sources
// that were configured by @username only, persisting the resolved id so
// future runs skip the lookup.
func (l *Listener) ResolveUsernames(ctx context.Context, sources []*models.Source) error {
	for _, src := range sources {
		if src.Kind == models.SourceKindChatFolder || src.ChatPeerID != nil {
			continue
		}
		if src.ChatUsername == nil || *src.ChatUsername == "" {
			l.log.Warn().Str("source", src.Name).Msg("chat source has neither peer id nor username, skipping")
			continue
		}

		username := strings.TrimPrefix(*src.ChatUsername, "@")
		resolved, err := l.raw.ContactsResolveUsername(ctx, username)
		if err != nil {
			l.log.Warn().Err(err).Str("source", src.Name).Str("username", username).Msg("failed to resolve username")
			continue
		}

		l.rememberChats(resolved.Chats)

		for _, chat := range resolved.Chats {
			if ch, ok := chat.(*tg.Channel); ok {
				peerID := ch.ID
				src.ChatPeerID = &peerID
				if err := l.repo.UpsertSource(ctx, src); err != nil {
					return fmt.Errorf("chat: storing resolved peer id for %s: %w", src.Name, err)
				}
				l.log.Info().Str("source", src.Name).Int64("peer_id", peerID).Msg("resolved username")
				break
			}
		}
	}
	return nil
}

// BuildSubscriptionMap maps each chat id to the pail source ids that want
// its messages: direct sources by their own ChatPeerID, plus every
// resolved folder channel routed back to its owning folder source.
func BuildSubscriptionMap(directSources []*models.Source, folderChannels map[string][]*models.FolderChannel) map[int64][]string {
	subs := make(map[int64][]string)

	for _, src := range directSources {
		if src.ChatPeerID == nil {
			continue
		}
		subs[*src.ChatPeerID] = append(subs[*src.ChatPeerID], src.ID)
	}

	for sourceID, channels := range folderChannels {
		for _, fc := range channels {
			subs[fc.ChannelPeerID] = append(subs[fc.ChannelPeerID], sourceID)
		}
	}

	return subs
}

// BuildChannelNameMap maps each resolved folder channel's chat id to its
// display name, so incoming messages can be tagged with the channel they
// came from independent of which folder source subscribed to it.
func BuildChannelNameMap(folderChannels map[string][]*models.FolderChannel) map[int64]string {
	names := make(map[int64]string)
	for _, channels := range folderChannels {
		for _, fc := range channels {
			names[fc.ChannelPeerID] = fc.ChannelName
		}
	}
	return names
}
