package presence

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Yotei/pkg/lavalink"
)

// Manager keeps the bot's Discord presence in sync with playback: the title
// of the current track while something plays, a pool summary otherwise.
type Manager struct {
	session *discordgo.Session
	pool    *lavalink.Manager

	mu      sync.RWMutex
	current string
}

// NewManager creates a presence manager
func NewManager(session *discordgo.Session, pool *lavalink.Manager) *Manager {
	return &Manager{
		session: session,
		pool:    pool,
	}
}

// UpdateDefault shows the pool summary: how many players are live across how
// many servers
func (m *Manager) UpdateDefault() {
	players := m.pool.Players()
	playing := 0
	for _, p := range players {
		if p.Playing() {
			playing++
		}
	}

	m.update(&discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  fmt.Sprintf("%d players", len(players)),
				Type:  discordgo.ActivityTypeWatching,
				State: fmt.Sprintf("playing in %d servers", playing),
			},
		},
	}, "default")
}

// UpdateMusic shows the title of the track that just started
func (m *Manager) UpdateMusic(title string) {
	m.update(&discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "to",
				Type:  discordgo.ActivityTypeListening,
				State: title,
			},
		},
	}, "music")
}

// ClearMusic returns to the pool summary after playback ends
func (m *Manager) ClearMusic() {
	m.UpdateDefault()
}

// Current returns which presence kind is showing
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) update(data *discordgo.UpdateStatusData, kind string) {
	if err := m.session.UpdateStatusComplex(*data); err != nil {
		log.Printf("Failed to update bot presence: %v", err)
		return
	}

	m.mu.Lock()
	m.current = kind
	m.mu.Unlock()
}

// StartPeriodicUpdates refreshes the pool summary on a timer, leaving a music
// presence alone until playback ends
func (m *Manager) StartPeriodicUpdates() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			if m.Current() != "music" {
				m.UpdateDefault()
			}
		}
	}()
}
