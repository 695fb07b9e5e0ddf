// Package lavalink implements the client side of a pool of remote audio
// processing nodes. The bot never decodes or mixes audio itself; it asks a
// node to do that and orchestrates the result.
//
// # Core Components
//
// The package is built from four cooperating pieces:
//
//   - Manager: owns the node pool and the guild -> player registry, performs
//     node selection for new players and enforces one player per guild
//   - Node: owns one websocket to a remote engine, including reconnect and
//     backoff, stats tracking and the load penalty used for selection
//   - Player: the per-guild playback state machine driven by engine events
//   - voice link: reconciles the two Discord voice signals into a single
//     credential push to the bound node, throttled to one push per second
//
// # Usage Example
//
//	manager := lavalink.NewManager(lavalink.Config{UserID: botID}, gateway)
//	err := manager.AddNode(lavalink.NodeConfig{
//		Name:     "main",
//		Host:     "localhost",
//		Port:     2333,
//		Password: "youshallnotpass",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	player, err := manager.CreatePlayer(guildID, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	player.Connect(channelID, true, false)
package lavalink
