package handlers

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Yotei/pkg/lavalink"
)

var manager *lavalink.Manager

// SetManager wires the lavalink manager into this package's handlers
func SetManager(m *lavalink.Manager) {
	manager = m
}

// VoiceServerUpdateHandler forwards the "server assigned" signal to the
// guild's player
func VoiceServerUpdateHandler(s *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	if manager == nil {
		return
	}
	player := manager.Player(e.GuildID)
	if player == nil {
		return
	}
	player.HandleVoiceServerUpdate(e.Endpoint, e.Token)
}

// VoiceStateUpdateHandler forwards the bot's own "gateway state" signal to
// the guild's player. Updates for other users are not ours to handle.
func VoiceStateUpdateHandler(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if manager == nil || e.UserID != s.State.User.ID {
		return
	}
	player := manager.Player(e.GuildID)
	if player == nil {
		return
	}
	player.HandleVoiceStateUpdate(e.ChannelID, e.SessionID, e.SelfDeaf, e.SelfMute)
}
