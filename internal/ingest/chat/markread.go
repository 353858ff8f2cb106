package chat

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/pail-dev/pail/internal/models"
)

// MarkChannelsAsRead marks consumed messages read up to the highest
// message id per chat found across items. This is the only write
// operation the daemon performs against Telegram. Best-effort: a failure
// is logged and never fails the generation pipeline that called it.
func (l *Listener) MarkChannelsAsRead(ctx context.Context, items []*models.ContentItem) {
	maxPerChat := make(map[int64]int)
	for _, item := range items {
		if item.Metadata == nil {
			continue
		}
		chatID, ok := toInt64(item.Metadata["chat_id"])
		if !ok {
			continue
		}
		msgID, ok := toInt64(item.Metadata["message_id"])
		if !ok {
			continue
		}
		if int(msgID) > maxPerChat[chatID] {
			maxPerChat[chatID] = int(msgID)
		}
	}

	if len(maxPerChat) == 0 {
		return
	}

	for chatID, maxID := range maxPerChat {
		accessHash, ok := l.accessHashes[chatID]
		if !ok {
			l.log.Warn().Int64("chat_id", chatID).Msg("no cached access hash, skipping mark-as-read")
			continue
		}
		if _, err := l.raw.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{ChannelID: chatID, AccessHash: accessHash},
			MaxID:   maxID,
		}); err != nil {
			l.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to mark channel as read")
		}
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
