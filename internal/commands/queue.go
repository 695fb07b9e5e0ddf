package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// QueueCommand shows the pending queue for this guild
func QueueCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	player := Manager.Player(m.GuildID)
	if player == nil {
		sendEmbedMessage(s, m.ChannelID, "📭 Queue Empty", "The queue is empty.", 0x808080)
		return
	}

	tracks := player.Queue().List()
	current := player.Current()
	if current == nil && len(tracks) == 0 {
		sendEmbedMessage(s, m.ChannelID, "📭 Queue Empty", "The queue is empty.", 0x808080)
		return
	}

	var sb strings.Builder
	if current != nil {
		fmt.Fprintf(&sb, "**Now playing:** %s (%s)\n\n", current.Info.Title, formatDuration(current.Info.Length))
	}
	for i, track := range tracks {
		if i >= 10 {
			fmt.Fprintf(&sb, "... and %d more\n", len(tracks)-10)
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, track.Info.Title, formatDuration(track.Info.Length))
	}

	sendEmbedMessage(s, m.ChannelID, "🎵 Queue", sb.String(), 0x00ff00)
}

// ShuffleCommand shuffles the pending queue
func ShuffleCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	player := Manager.Player(m.GuildID)
	if player == nil || player.Queue().Len() == 0 {
		sendEmbedMessage(s, m.ChannelID, "❌ Error", "The queue is empty.", 0xff0000)
		return
	}

	player.Shuffle()
	sendEmbedMessage(s, m.ChannelID, "🔀 Shuffled", "The queue has been shuffled.", 0x00ff00)
}
