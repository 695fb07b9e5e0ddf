package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"

	"github.com/latoulicious/Yotei/internal/commands"
	"github.com/latoulicious/Yotei/internal/config"
	"github.com/latoulicious/Yotei/internal/handlers"
	"github.com/latoulicious/Yotei/internal/presence"
	"github.com/latoulicious/Yotei/pkg/database"
	"github.com/latoulicious/Yotei/pkg/lavalink"
	"github.com/latoulicious/Yotei/pkg/resolver"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}

	// Open a websocket connection to Discord and begin listening.
	err = dg.Open()
	if err != nil {
		log.Fatalf("Failed to open Discord session: %v", err)
	}

	// Create the node manager once the bot user id is known
	manager := lavalink.NewManager(lavalink.Config{
		UserID:        dg.State.User.ID,
		IdleThreshold: cfg.IdleThreshold,
	}, handlers.NewDiscordGateway(dg))
	manager.SetResolver(resolver.New())

	manager.OnError(func(err error) {
		log.Printf("Lavalink error: %v", err)
	})
	manager.OnNodeReady(func(n *lavalink.Node) {
		log.Printf("Node %s is ready", n.Name())
	})
	// Keep the bot presence tracking playback
	status := presence.NewManager(dg, manager)
	status.UpdateDefault()
	status.StartPeriodicUpdates()

	manager.OnQueueEnd(func(p *lavalink.Player) {
		log.Printf("Queue finished for guild %s", p.GuildID())
		status.ClearMusic()
	})
	manager.OnPlayerDestroy(func(p *lavalink.Player) {
		status.ClearMusic()
	})

	// Register every configured node; a bad entry is fatal at startup
	for _, nodeCfg := range cfg.Nodes {
		if err := manager.AddNode(nodeCfg); err != nil {
			log.Fatalf("Failed to register node %s: %v", nodeCfg.Name, err)
		}
	}

	// Wire the manager into the handler and command packages
	handlers.SetManager(manager)
	commands.Setup(manager, resolver.New())
	commands.SetPresence(status)

	// Register the gateway handlers
	dg.AddHandler(handlers.MessageHandler)
	dg.AddHandler(handlers.VoiceServerUpdateHandler)
	dg.AddHandler(handlers.VoiceStateUpdateHandler)

	// Optional stats history recording
	var statsStore *database.StatsStore
	if cfg.StatsDBPath != "" {
		statsStore, err = database.NewStatsStore(cfg.StatsDBPath)
		if err != nil {
			log.Fatalf("Failed to open stats store: %v", err)
		}
		defer statsStore.Close()
	}

	// Periodic maintenance: idle sweep every minute, stats snapshot every
	// minute when recording is enabled
	scheduler := cron.New()
	scheduler.AddFunc("* * * * *", func() {
		if n := manager.SweepIdle(); n > 0 {
			log.Printf("Idle sweep destroyed %d players", n)
		}
	})
	if statsStore != nil {
		scheduler.AddFunc("* * * * *", func() {
			for _, node := range manager.Nodes() {
				if err := statsStore.Record(node.Name(), node.CachedStats(), node.Penalty()); err != nil {
					log.Printf("Failed to record stats: %v", err)
				}
			}
		})
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Bot is running. Press CTRL-C to exit.")
	// Wait here until CTRL-C or other term signal is received.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	// Tear down every node cleanly, then close the Discord session.
	for _, node := range manager.Nodes() {
		manager.RemoveNode(node.Name())
	}
	dg.Close()
}
