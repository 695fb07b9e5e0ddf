package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/latoulicious/Yotei/pkg/lavalink"
)

// Config is everything the bot needs to start
type Config struct {
	DiscordToken  string
	Nodes         []lavalink.NodeConfig
	IdleThreshold time.Duration
	StatsDBPath   string
}

// LoadConfig reads the environment, loading a .env file first when present
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	discordToken := os.Getenv("DISCORD_TOKEN")
	if discordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not set")
	}

	nodes, err := ParseNodes(os.Getenv("LAVALINK_NODES"))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("LAVALINK_NODES is not set")
	}

	idleThreshold := 5 * time.Minute
	if raw := os.Getenv("IDLE_THRESHOLD_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid IDLE_THRESHOLD_SECONDS %q: %v", raw, err)
		}
		idleThreshold = time.Duration(seconds) * time.Second
	}

	return &Config{
		DiscordToken:  discordToken,
		Nodes:         nodes,
		IdleThreshold: idleThreshold,
		StatsDBPath:   os.Getenv("STATS_DB_PATH"),
	}, nil
}

// ParseNodes parses LAVALINK_NODES, a comma-separated list of entries shaped
// name|host:port|password|region1;region2 where the region list is optional.
func ParseNodes(raw string) ([]lavalink.NodeConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var nodes []lavalink.NodeConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		fields := strings.Split(entry, "|")
		if len(fields) < 3 {
			return nil, fmt.Errorf("invalid node entry %q: want name|host:port|password[|regions]", entry)
		}

		host, portRaw, ok := strings.Cut(fields[1], ":")
		if !ok {
			return nil, fmt.Errorf("invalid node address %q: want host:port", fields[1])
		}
		port, err := strconv.Atoi(portRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid node port %q: %v", portRaw, err)
		}

		node := lavalink.NodeConfig{
			Name:     fields[0],
			Host:     host,
			Port:     port,
			Password: fields[2],
		}
		if len(fields) > 3 && fields[3] != "" {
			node.Regions = strings.Split(fields[3], ";")
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
