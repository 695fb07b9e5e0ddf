package commands

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// PlayCommand resolves a query, queues the result and starts playback if the
// player is idle
func PlayCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		sendEmbedMessage(s, m.ChannelID, "❌ Usage Error", "Please provide a URL or search query.", 0xff0000)
		return
	}

	guildID := m.GuildID

	channelID, err := findUserVoiceChannel(s, m.Author.ID, guildID)
	if err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", err.Error(), 0xff0000)
		return
	}

	player, err := Manager.CreatePlayer(guildID, "")
	if err != nil {
		log.Printf("Error creating player for guild %s: %v", guildID, err)
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "No audio nodes are available right now.", 0xff0000)
		return
	}

	if !player.Connected() || player.ChannelID() != channelID {
		if err := player.Connect(channelID, true, false); err != nil {
			log.Printf("Error joining voice channel %s: %v", channelID, err)
			sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to join your voice channel.", 0xff0000)
			return
		}
		if err := waitForLink(player); err != nil {
			sendEmbedMessage(s, m.ChannelID, "❌ Error", "Voice connection timed out.", 0xff0000)
			return
		}
	}

	query := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	track, err := Resolver.Resolve(ctx, player.Node(), query)
	if err != nil {
		log.Printf("Error resolving %q: %v", query, err)
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to find anything for your query.", 0xff0000)
		return
	}

	player.Queue().Add(track)

	description := fmt.Sprintf("✅ Added **%s** by **%s** (%s) to queue (Position: %d)",
		track.Info.Title, track.Info.Author, formatDuration(track.Info.Length), player.Queue().Len())
	sendEmbedMessage(s, m.ChannelID, "🎵 Track Added", description, 0x00ff00)

	if !player.Playing() {
		if err := player.Play(); err != nil {
			log.Printf("Error starting playback for guild %s: %v", guildID, err)
			sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to start playback.", 0xff0000)
			return
		}

		current := player.Current()
		if current != nil {
			if Status != nil {
				Status.UpdateMusic(current.Info.Title)
			}
			msg := sendEmbedMessage(s, m.ChannelID, "▶️ Now Playing", current.Info.Title, 0x00ff00)
			if msg != nil {
				channelID := m.ChannelID
				player.SetNowPlayingCleanup(func() error {
					return s.ChannelMessageDelete(channelID, msg.ID)
				})
			}
		}
	}
}
