package commands

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Yotei/internal/presence"
	"github.com/latoulicious/Yotei/pkg/lavalink"
	"github.com/latoulicious/Yotei/pkg/resolver"
)

// Package-level references set once from main
var (
	Manager  *lavalink.Manager
	Resolver *resolver.YouTubeResolver
	Status   *presence.Manager
)

// Setup wires the shared manager and resolver into the command package
func Setup(m *lavalink.Manager, r *resolver.YouTubeResolver) {
	Manager = m
	Resolver = r
}

// SetPresence wires the optional presence manager
func SetPresence(p *presence.Manager) {
	Status = p
}

// sendEmbedMessage sends a styled embed to the channel and returns the sent
// message, or nil when sending failed
func sendEmbedMessage(s *discordgo.Session, channelID, title, description string, color int) *discordgo.Message {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
	}

	msg, err := s.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		log.Printf("Error sending embed message: %v", err)
		return nil
	}
	return msg
}

// findUserVoiceChannel locates the voice channel the user currently sits in
func findUserVoiceChannel(s *discordgo.Session, userID, guildID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		guild, err = s.Guild(guildID)
		if err != nil {
			return "", fmt.Errorf("failed to look up guild: %v", err)
		}
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", fmt.Errorf("you must be in a voice channel first")
}

// waitForLink blocks until the player's voice link is established or the
// timeout fires
func waitForLink(player *lavalink.Player) error {
	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("timed out waiting for voice link")
		case <-ticker.C:
			if player.Connected() {
				return nil
			}
		}
	}
}

// formatDuration renders a track length as m:ss
func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
