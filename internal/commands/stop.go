package commands

import (
	"github.com/bwmarrin/discordgo"
)

// StopCommand stops playback and clears the queue
func StopCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	player := Manager.Player(m.GuildID)
	if player == nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing.", 0xff0000)
		return
	}

	player.Queue().Clear()
	if err := player.Stop(); err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to stop playback.", 0xff0000)
		return
	}
	sendEmbedMessage(s, m.ChannelID, "⏹️ Stopped", "Playback stopped and queue cleared.", 0xffa500)
}

// LeaveCommand disconnects the bot and destroys the guild's player
func LeaveCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	if Manager.Player(m.GuildID) == nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Not connected to a voice channel.", 0xff0000)
		return
	}

	Manager.DestroyPlayer(m.GuildID)
	sendEmbedMessage(s, m.ChannelID, "👋 Left", "Disconnected from the voice channel.", 0xffa500)
}
