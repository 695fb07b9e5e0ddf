package commands

import (
	"github.com/bwmarrin/discordgo"
)

// SkipCommand stops the current track; the end event advances the queue
func SkipCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	player := Manager.Player(m.GuildID)
	if player == nil || player.Current() == nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing.", 0xff0000)
		return
	}

	if err := player.Skip(); err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to skip the current track.", 0xff0000)
		return
	}
	sendEmbedMessage(s, m.ChannelID, "⏭️ Skipped", "Skipped to the next track.", 0x00ff00)
}
