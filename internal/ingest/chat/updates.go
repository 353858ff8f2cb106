package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/tg"

	"github.com/pail-dev/pail/internal/models"
)

// handleUpdates receives every gap-ordered update and ingests the ones
// that carry new channel/group messages for a subscribed chat.
func (l *Listener) handleUpdates(ctx context.Context, u tg.UpdatesClass) error {
	for _, update := range flattenUpdates(u) {
		msgUpdate, ok := update.(*tg.UpdateNewChannelMessage)
		if ok {
			l.ingestMessage(ctx, msgUpdate.Message)
			continue
		}
		if plain, ok := update.(*tg.UpdateNewMessage); ok {
			l.ingestMessage(ctx, plain.Message)
		}
	}
	return nil
}

func flattenUpdates(u tg.UpdatesClass) []tg.UpdateClass {
	switch v := u.(type) {
	case *tg.Updates:
		return v.Updates
	case *tg.UpdatesCombined:
		return v.Updates
	case *tg.UpdateShort:
		return []tg.UpdateClass{v.Update}
	default:
		return nil
	}
}

func (l *Listener) ingestMessage(ctx context.Context, m tg.MessageClass) {
	msg, ok := m.(*tg.Message)
	if !ok || msg.Out {
		return
	}

	chatID := peerChatID(msg.PeerID)
	if chatID == 0 {
		return
	}

	sourceIDs, ok := l.subscriptions[chatID]
	if !ok || len(sourceIDs) == 0 {
		return
	}

	channelName := l.channelNames[chatID]

	for _, sourceID := range sourceIDs {
		item := itemFromMessage(sourceID, chatID, channelName, msg)
		if _, err := l.repo.InsertContentItemIfAbsent(ctx, item); err != nil {
			l.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to store chat message")
		}
	}
}

func itemFromMessage(sourceID string, chatID int64, channelName string, msg *tg.Message) *models.ContentItem {
	date := time.Unix(int64(msg.Date), 0).UTC()

	contentType := models.ContentTypeText
	if _, ok := msg.GetFwdFrom(); ok {
		contentType = models.ContentTypeForward
	} else if msg.Media != nil {
		contentType = models.ContentTypeMedia
	}

	meta := models.JSON{
		"chat_id":    chatID,
		"message_id": msg.ID,
	}
	if channelName != "" {
		meta["resolved_channel_name"] = channelName
	}
	if replyTo, ok := replyToMsgID(msg); ok {
		meta["reply_to_msg_id"] = replyTo
	}
	if from, ok := forwardFromName(msg); ok {
		meta["forward_from"] = from
	}
	if msg.Media != nil {
		meta["media_type"] = mediaDiscriminator(msg.Media)
	}

	return &models.ContentItem{
		ID:           uuid.NewString(),
		SourceID:     sourceID,
		IngestedAt:   time.Now().UTC(),
		OriginalDate: date,
		ContentType:  contentType,
		Body:         msg.Message,
		Metadata:     meta,
		DedupKey:     chatMessageID(chatID, msg.ID),
	}
}

// replyToMsgID extracts the message id a message is replying to, if any.
func replyToMsgID(msg *tg.Message) (int, bool) {
	header, ok := msg.ReplyTo.(*tg.MessageReplyHeader)
	if !ok || header.ReplyToMsgID == 0 {
		return 0, false
	}
	return header.ReplyToMsgID, true
}

// forwardFromName extracts a human-readable forward origin, preferring the
// sender's display name over an anonymous channel post's author credit.
func forwardFromName(msg *tg.Message) (string, bool) {
	fwdFrom, ok := msg.GetFwdFrom()
	if !ok {
		return "", false
	}
	if fwdFrom.FromName != "" {
		return fwdFrom.FromName, true
	}
	if fwdFrom.PostAuthor != "" {
		return fwdFrom.PostAuthor, true
	}
	return "", false
}

// mediaDiscriminator classifies a message's media payload more finely than
// the coarse ContentType enum, mirroring the media-type tagging the chat
// protocol's own client libraries expose.
func mediaDiscriminator(media tg.MessageMediaClass) string {
	switch media.(type) {
	case *tg.MessageMediaPhoto:
		return "photo"
	case *tg.MessageMediaDocument:
		return "document"
	case *tg.MessageMediaContact:
		return "contact"
	case *tg.MessageMediaGeo:
		return "geo"
	case *tg.MessageMediaGeoLive:
		return "geo_live"
	case *tg.MessageMediaVenue:
		return "venue"
	case *tg.MessageMediaPoll:
		return "poll"
	case *tg.MessageMediaDice:
		return "dice"
	case *tg.MessageMediaWebPage:
		return "webpage"
	default:
		return "other"
	}
}

func peerChatID(p tg.PeerClass) int64 {
	switch v := p.(type) {
	case *tg.PeerChannel:
		return v.ChannelID
	case *tg.PeerChat:
		return v.ChatID
	case *tg.PeerUser:
		return v.UserID
	default:
		return 0
	}
}

func chatMessageID(chatID int64, messageID int) string {
	return fmt.Sprintf("tg:%d:%d", chatID, messageID)
}
