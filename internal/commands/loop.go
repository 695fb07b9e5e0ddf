package commands

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Yotei/pkg/lavalink"
)

// LoopCommand sets the loop mode: none, track or queue
func LoopCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	player := Manager.Player(m.GuildID)
	if player == nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing.", 0xff0000)
		return
	}

	if len(args) < 1 {
		sendEmbedMessage(s, m.ChannelID, "🔁 Loop Mode", fmt.Sprintf("Current loop mode: **%s**", player.Loop()), 0x00ff00)
		return
	}

	mode, err := lavalink.ParseLoopMode(args[0])
	if err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Loop mode must be `none`, `track` or `queue`.", 0xff0000)
		return
	}

	if err := player.SetLoop(mode); err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to set loop mode.", 0xff0000)
		return
	}
	sendEmbedMessage(s, m.ChannelID, "🔁 Loop Mode", fmt.Sprintf("Loop mode set to **%s**.", mode), 0x00ff00)
}

// VolumeCommand sets the playback volume, 0..200
func VolumeCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	player := Manager.Player(m.GuildID)
	if player == nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing.", 0xff0000)
		return
	}

	if len(args) < 1 {
		sendEmbedMessage(s, m.ChannelID, "🔊 Volume", fmt.Sprintf("Current volume: **%d**", player.Volume()), 0x00ff00)
		return
	}

	volume, err := strconv.Atoi(args[0])
	if err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Volume must be a number between 0 and 200.", 0xff0000)
		return
	}

	if err := player.SetVolume(volume); err != nil {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "Volume must be between 0 and 200.", 0xff0000)
		return
	}
	sendEmbedMessage(s, m.ChannelID, "🔊 Volume", fmt.Sprintf("Volume set to **%d**.", volume), 0x00ff00)
}
