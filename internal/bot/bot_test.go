package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func newMessageCreate() *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "333",
			ChannelID: "222",
			GuildID:   "111",
			Content:   "check https://youtu.be/abc",
			Author: &discordgo.User{
				ID:       "1001",
				Username: "submitter1",
			},
		},
	}
}

func TestMessageFromEvent_MapsCoreFields(t *testing.T) {
	msg := messageFromEvent(newMessageCreate())

	require.Equal(t, "check https://youtu.be/abc", msg.Content)
	require.Equal(t, "submitter1", msg.AuthorName)
	require.Equal(t, "1001", msg.AuthorID)
	require.Equal(t, "222", msg.ChannelID)
	require.Equal(t, "https://discord.com/channels/111/222/333", msg.PermaLink)
	require.Empty(t, msg.Attachments)
}

func TestMessageFromEvent_KeepsOnlyCDNAttachments(t *testing.T) {
	m := newMessageCreate()
	m.Attachments = []*discordgo.MessageAttachment{
		{URL: "https://cdn.discordapp.com/attachments/1/2/clip.mp4", Filename: "clip.mp4"},
		{URL: "https://evil.example.com/clip.mp4", Filename: "clip.mp4"},
		{URL: "https://media.discordapp.com/attachments/1/2/other.mov", Filename: "other.mov"},
		nil,
	}

	msg := messageFromEvent(m)
	require.Len(t, msg.Attachments, 2)
	require.Equal(t, "https://cdn.discordapp.com/attachments/1/2/clip.mp4", msg.Attachments[0].URL)
	require.Equal(t, "other.mov", msg.Attachments[1].Filename)
}

func TestPermalink_DMFallback(t *testing.T) {
	require.Equal(t, "https://discord.com/channels/@me/222/333", permalink("", "222", "333"))
}

func TestIsDiscordCDN(t *testing.T) {
	require.True(t, isDiscordCDN("https://cdn.discordapp.com/attachments/1/2/x.mp4"))
	require.True(t, isDiscordCDN("https://media.discordapp.com/x.mp4"))
	require.False(t, isDiscordCDN("https://cdn.discordapp.com.evil.example/x.mp4"))
	require.False(t, isDiscordCDN("::bad::"))
}
