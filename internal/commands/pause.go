package commands

import (
	"github.com/bwmarrin/discordgo"
)

// PauseCommand pauses the current track
func PauseCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	player := Manager.Player(m.GuildID)
	if player == nil || !player.Playing() {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing.", 0xff0000)
		return
	}
	if player.Paused() {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Playback is already paused.", 0xff0000)
		return
	}

	if err := player.Pause(true); err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to pause playback.", 0xff0000)
		return
	}
	sendEmbedMessage(s, m.ChannelID, "⏸️ Playback Paused", "Music playback has been paused.", 0xffa500)
}

// ResumeCommand resumes a paused track
func ResumeCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	player := Manager.Player(m.GuildID)
	if player == nil || !player.Playing() {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing.", 0xff0000)
		return
	}
	if !player.Paused() {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Playback is not paused.", 0xff0000)
		return
	}

	if err := player.Pause(false); err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to resume playback.", 0xff0000)
		return
	}
	sendEmbedMessage(s, m.ChannelID, "▶️ Playback Resumed", "Music playback has resumed.", 0x00ff00)
}
