package chat

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/require"

	"github.com/pail-dev/pail/internal/models"
)

func TestChatMessageID(t *testing.T) {
	require.Equal(t, "tg:100:7", chatMessageID(100, 7))
	require.NotEqual(t, chatMessageID(100, 7), chatMessageID(101, 7))
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(5), 5, true},
		{float64(5), 5, true},
		{int(5), 5, true},
		{"nope", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := toInt64(c.in)
		require.Equal(t, c.ok, ok)
		if c.ok {
			require.Equal(t, c.want, got)
		}
	}
}

func TestBuildSubscriptionMap(t *testing.T) {
	peerA := int64(111)
	direct := []*models.Source{
		{ID: "src-a", ChatPeerID: &peerA},
		{ID: "src-b"},
	}
	folderChannels := map[string][]*models.FolderChannel{
		"src-folder": {
			{ChannelPeerID: 222, ChannelName: "news"},
			{ChannelPeerID: 333, ChannelName: "chatter"},
		},
	}

	subs := BuildSubscriptionMap(direct, folderChannels)

	require.Equal(t, []string{"src-a"}, subs[111])
	require.Equal(t, []string{"src-folder"}, subs[222])
	require.Equal(t, []string{"src-folder"}, subs[333])
	require.NotContains(t, subs, int64(0))
}

func TestBuildChannelNameMap(t *testing.T) {
	folderChannels := map[string][]*models.FolderChannel{
		"src-folder": {
			{ChannelPeerID: 222, ChannelName: "news"},
		},
	}
	names := BuildChannelNameMap(folderChannels)
	require.Equal(t, "news", names[222])
}

func TestItemFromMessageStampsResolvedChannelName(t *testing.T) {
	msg := &tg.Message{ID: 42, Message: "hello", Date: 1700000000}
	item := itemFromMessage("src-folder", 222, "news", msg)
	require.Equal(t, "news", item.Metadata["resolved_channel_name"])
	require.Equal(t, "src-folder", item.SourceID)
	require.Equal(t, chatMessageID(222, 42), item.DedupKey)
}

func TestItemFromMessageOmitsEmptyChannelName(t *testing.T) {
	msg := &tg.Message{ID: 7, Message: "hi", Date: 1700000000}
	item := itemFromMessage("src-direct", 111, "", msg)
	require.NotContains(t, item.Metadata, "resolved_channel_name")
}
