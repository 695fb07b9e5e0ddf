package handlers

import "github.com/bwmarrin/discordgo"

// DiscordGateway adapts a discordgo session to the voice gateway the
// lavalink manager expects: one "set voice state" op, where an empty channel
// id means disconnect.
type DiscordGateway struct {
	session *discordgo.Session
}

// NewDiscordGateway wraps a discordgo session
func NewDiscordGateway(session *discordgo.Session) *DiscordGateway {
	return &DiscordGateway{session: session}
}

// SendVoiceState issues the gateway voice state update
func (g *DiscordGateway) SendVoiceState(guildID, channelID string, selfDeaf, selfMute bool) error {
	return g.session.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf)
}
