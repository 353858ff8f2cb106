package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"github.com/pail-dev/pail/internal/models"
)

const historyPageSize = 100

// historyPacing separates successive per-chat history fetches to avoid
// bursting the chat API, mirroring the original CLI fetcher's own delay.
const historyPacing = 500 * time.Millisecond

// FetchHistory performs a bounded backfill for every direct chat source and
// every resolved child of a chat_folder source, stopping per-chat as soon
// as a message older than since is seen — no item-count limit, the time
// boundary is the sole stop condition. This is the one explicit exception
// to the daemon's no-backfill ingestion, reserved for the `generate` and
// `interactive` CLI commands' self-contained one-shot collection.
func (l *Listener) FetchHistory(ctx context.Context, sources []*models.Source, since time.Time) error {
	first := true
	pace := func() {
		if !first {
			time.Sleep(historyPacing)
		}
		first = false
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if src.Kind == models.SourceKindChatFolder {
			channels, err := l.repo.ListFolderChannels(ctx, src.ID)
			if err != nil {
				return fmt.Errorf("chat: listing folder channels for %s: %w", src.Name, err)
			}
			if len(channels) == 0 {
				l.log.Warn().Str("source", src.Name).Msg("folder has no channels, skipping history fetch")
				continue
			}
			for _, fc := range channels {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				pace()
				count, err := l.fetchChannelHistory(ctx, src.ID, fc.ChannelPeerID, fc.ChannelName, since)
				if err != nil {
					l.log.Warn().Err(err).Str("source", src.Name).Int64("channel_id", fc.ChannelPeerID).Msg("failed to fetch folder channel history")
					continue
				}
				l.log.Debug().Str("source", src.Name).Int64("channel_id", fc.ChannelPeerID).Int("items", count).Msg("fetched folder channel history")
			}
			continue
		}

		if src.ChatPeerID == nil {
			l.log.Warn().Str("source", src.Name).Msg("chat source has no resolved peer id, skipping history fetch")
			continue
		}

		pace()
		count, err := l.fetchChannelHistory(ctx, src.ID, *src.ChatPeerID, "", since)
		if err != nil {
			l.log.Warn().Err(err).Str("source", src.Name).Msg("failed to fetch history")
			continue
		}
		l.log.Info().Str("source", src.Name).Int("items", count).Msg("fetched chat history")
	}

	return nil
}

// fetchChannelHistory pages messages.getHistory newest-first for one
// chat id, storing every message at or after since and stopping at the
// first one older than it. channelName, when non-empty, tags each stored
// item with resolved_channel_name (the chat_folder child-attribution
// case); direct sources leave it blank since their own Source.Name is
// already the attribution the workspace builder needs.
func (l *Listener) fetchChannelHistory(ctx context.Context, sourceID string, peerID int64, channelName string, since time.Time) (int, error) {
	peer := &tg.InputPeerChannel{ChannelID: peerID, AccessHash: l.accessHashes[peerID]}

	offsetID := 0
	stored := 0
	for {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}

		resp, err := l.raw.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    historyPageSize,
		})
		if err != nil {
			return stored, fmt.Errorf("chat: fetching history for %d: %w", peerID, err)
		}

		messages, done := flattenHistory(resp)
		if len(messages) == 0 {
			return stored, nil
		}

		for _, m := range messages {
			msg, ok := m.(*tg.Message)
			if !ok {
				continue
			}
			if time.Unix(int64(msg.Date), 0).UTC().Before(since) {
				return stored, nil
			}

			item := itemFromMessage(sourceID, peerID, channelName, msg)
			if _, err := l.repo.InsertContentItemIfAbsent(ctx, item); err != nil {
				return stored, fmt.Errorf("chat: storing history item: %w", err)
			}
			stored++
			offsetID = msg.ID
		}

		if done || len(messages) < historyPageSize {
			return stored, nil
		}
	}
}

func flattenHistory(m tg.MessagesMessagesClass) ([]tg.MessageClass, bool) {
	switch v := m.(type) {
	case *tg.MessagesMessages:
		return v.Messages, true
	case *tg.MessagesMessagesSlice:
		return v.Messages, false
	case *tg.MessagesChannelMessages:
		return v.Messages, false
	default:
		return nil, true
	}
}
