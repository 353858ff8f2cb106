package chat

import (
	"context"

	"github.com/gotd/td/tg"
)

const dialogPageSize = 100

// WarmPeerCache iterates the account's dialog list once so the MTProto
// session caches access hashes for every chat the user is a member of.
// Sources configured with a numeric peer id but no username never trigger
// a username-resolve call, so without this their access hash can be
// missing and getHistory/readHistory calls fail with CHANNEL_INVALID.
func (l *Listener) WarmPeerCache(ctx context.Context) error {
	offsetDate, offsetID := 0, 0
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	for {
		resp, err := l.raw.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogPageSize,
		})
		if err != nil {
			return err
		}

		dialogs, messages, done := flattenDialogs(resp)
		l.rememberChats(dialogChats(resp))
		if len(dialogs) == 0 || done {
			return nil
		}

		last := messages[len(messages)-1]
		offsetID = last.GetID()
		offsetDate = int(dialogDate(last))
		offsetPeer = dialogLastPeer(dialogs)

		if len(dialogs) < dialogPageSize {
			return nil
		}
	}
}

func dialogChats(d tg.MessagesDialogsClass) []tg.ChatClass {
	switch v := d.(type) {
	case *tg.MessagesDialogs:
		return v.Chats
	case *tg.MessagesDialogsSlice:
		return v.Chats
	default:
		return nil
	}
}

func flattenDialogs(d tg.MessagesDialogsClass) ([]tg.DialogClass, []tg.MessageClass, bool) {
	switch v := d.(type) {
	case *tg.MessagesDialogs:
		return v.Dialogs, v.Messages, true
	case *tg.MessagesDialogsSlice:
		return v.Dialogs, v.Messages, false
	default:
		return nil, nil, true
	}
}

func dialogDate(m tg.MessageClass) int {
	if msg, ok := m.(*tg.Message); ok {
		return msg.Date
	}
	return 0
}

func dialogLastPeer(dialogs []tg.DialogClass) tg.InputPeerClass {
	if len(dialogs) == 0 {
		return &tg.InputPeerEmpty{}
	}
	last := dialogs[len(dialogs)-1]
	dlg, ok := last.(*tg.Dialog)
	if !ok {
		return &tg.InputPeerEmpty{}
	}
	switch p := dlg.Peer.(type) {
	case *tg.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: p.ChannelID}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerUser:
		return &tg.InputPeerUser{UserID: p.UserID}
	default:
		return &tg.InputPeerEmpty{}
	}
}
