package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/pail-dev/pail/internal/models"
)

// ResolveFolders looks up each chat_folder Source's folder by title via
// messages.getDialogFilters, and upserts one FolderChannel row per member
// channel, so workspace preparation can later split folder content by its
// real child channel rather than the folder label.
func (l *Listener) ResolveFolders(ctx context.Context, folderSources []*models.Source) error {
	if len(folderSources) == 0 {
		return nil
	}

	filters, err := l.raw.MessagesGetDialogFilters(ctx)
	if err != nil {
		return fmt.Errorf("chat: fetching dialog filters: %w", err)
	}

	for _, src := range folderSources {
		if src.ChatFolderName == nil || *src.ChatFolderName == "" {
			continue
		}

		filter := findFilterByTitle(filters, *src.ChatFolderName)
		if filter == nil {
			l.log.Warn().Str("source", src.Name).Str("folder", *src.ChatFolderName).Msg("folder not found on telegram")
			continue
		}

		exclude := make(map[string]bool, len(src.ExcludeUsernames))
		for _, u := range src.ExcludeUsernames {
			exclude[normalizeUsername(u)] = true
		}

		peers := folderPeers(filter)
		infos := l.batchResolveChannelNames(ctx, peers)

		resolved := 0
		for _, peer := range peers {
			channelID, ok := peerChannelID(peer)
			if !ok {
				continue
			}
			info := infos[channelID]
			name := info.Name
			if name == "" {
				name = fmt.Sprintf("channel-%d", channelID)
			}
			if info.Username != "" && exclude[normalizeUsername(info.Username)] {
				l.log.Debug().Str("source", src.Name).Str("channel", info.Username).Msg("skipping excluded channel")
				continue
			}
			if err := l.repo.UpsertFolderChannel(ctx, src.ID, channelID, name, info.Username); err != nil {
				return fmt.Errorf("chat: storing folder channel: %w", err)
			}
			resolved++
		}

		l.log.Info().Str("source", src.Name).Int("channels", resolved).Msg("resolved folder")
	}

	return nil
}

func findFilterByTitle(filters *tg.MessagesDialogFilters, title string) tg.DialogFilterClass {
	for _, f := range filters.Filters {
		if filterTitle(f) == title {
			return f
		}
	}
	return nil
}

func filterTitle(f tg.DialogFilterClass) string {
	switch v := f.(type) {
	case *tg.DialogFilter:
		return strings.TrimSpace(v.Title)
	case *tg.DialogFilterChatlist:
		return strings.TrimSpace(v.Title)
	default:
		return ""
	}
}

func folderPeers(f tg.DialogFilterClass) []tg.InputPeerClass {
	switch v := f.(type) {
	case *tg.DialogFilter:
		return append(append([]tg.InputPeerClass{}, v.PinnedPeers...), v.IncludePeers...)
	case *tg.DialogFilterChatlist:
		return append(append([]tg.InputPeerClass{}, v.PinnedPeers...), v.IncludePeers...)
	default:
		return nil
	}
}

func peerChannelID(p tg.InputPeerClass) (int64, bool) {
	if c, ok := p.(*tg.InputPeerChannel); ok {
		return c.ChannelID, true
	}
	return 0, false
}

// channelInfo is the subset of a resolved channel's identity needed to
// record a FolderChannel row and check it against a source's exclusion list.
type channelInfo struct {
	Name     string
	Username string
}

// normalizeUsername strips a leading '@' and lowercases, matching the
// original's own exclusion-list comparison (telegram.rs's tg_exclude check).
func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(u, "@"))
}

func (l *Listener) batchResolveChannelNames(ctx context.Context, peers []tg.InputPeerClass) map[int64]channelInfo {
	result := make(map[int64]channelInfo)

	var inputChannels []tg.InputChannelClass
	for _, p := range peers {
		c, ok := p.(*tg.InputPeerChannel)
		if !ok {
			continue
		}
		inputChannels = append(inputChannels, &tg.InputChannel{ChannelID: c.ChannelID, AccessHash: c.AccessHash})
	}
	if len(inputChannels) == 0 {
		return result
	}

	chats, err := l.raw.ChannelsGetChannels(ctx, inputChannels)
	if err != nil {
		l.log.Warn().Err(err).Msg("failed to batch-resolve channel peers")
		return result
	}

	l.rememberChats(chats.GetChats())

	for _, chat := range chats.GetChats() {
		if ch, ok := chat.(*tg.Channel); ok {
			result[ch.ID] = channelInfo{Name: ch.Title, Username: ch.Username}
		}
	}
	return result
}
