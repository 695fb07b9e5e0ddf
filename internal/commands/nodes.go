package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// NodesCommand shows the health of every node in the pool
func NodesCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	nodes := Manager.Nodes()
	if len(nodes) == 0 {
		sendEmbedMessage(s, m.ChannelID, "📡 Nodes", "No nodes are registered.", 0x808080)
		return
	}

	var sb strings.Builder
	for _, node := range nodes {
		fmt.Fprintf(&sb, "**%s** — %s, penalty %d, %d players\n", node.Name(), node.State(), node.Penalty(), node.PlayerCount())
		if stats := node.CachedStats(); stats != nil {
			fmt.Fprintf(&sb, "  load %.2f, mem %.1f%%, deficit %d, nulled %d\n",
				stats.CPU.SystemLoad, stats.Memory.UsedPercent, stats.Frames.Deficit, stats.Frames.Nulled)
		}
	}

	sendEmbedMessage(s, m.ChannelID, "📡 Nodes", sb.String(), 0x00ff00)
}

// NowPlayingCommand shows the current track and position
func NowPlayingCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	player := Manager.Player(m.GuildID)
	if player == nil || player.Current() == nil {
		sendEmbedMessage(s, m.ChannelID, "🔇 Nothing Playing", "No track is currently playing.", 0x808080)
		return
	}

	current := player.Current()
	description := fmt.Sprintf("**%s** by **%s**\n%s / %s",
		current.Info.Title, current.Info.Author,
		formatDuration(player.Position()), formatDuration(current.Info.Length))
	sendEmbedMessage(s, m.ChannelID, "🎵 Now Playing", description, 0x00ff00)
}
