package lavalink

import (
	"log"
	"strings"
	"time"
	"unicode"
)

// pushThrottle is the minimum gap between two transmitted voice credential
// pushes. Pushes inside the window are dropped, not queued; the next signal
// after the window reopens carries the latest state.
const pushThrottle = time.Second

// voiceLink reconciles the two independently-arriving Discord voice signals
// (server assigned, gateway state) into one credential push to the bound
// node. A push only happens once both signals have arrived since the last
// reset.
type voiceLink struct {
	sessionID string
	endpoint  string
	token     string
	region    string
	selfMute  bool
	selfDeaf  bool
	hasServer bool
	hasState  bool
	lastPush  time.Time
}

func (v *voiceLink) reset() {
	v.hasServer = false
	v.hasState = false
}

// voiceRegion derives a region name from a voice endpoint: the first
// subdomain with digits stripped, e.g. "rotterdam10233.discord.media:443"
// becomes "rotterdam".
func voiceRegion(endpoint string) string {
	host := endpoint
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	sub, _, _ := strings.Cut(host, ".")
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, sub)
}

// HandleVoiceServerUpdate consumes the "server assigned" signal for this
// player's guild
func (p *Player) HandleVoiceServerUpdate(endpoint, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}

	p.voice.endpoint = endpoint
	p.voice.token = token
	p.voice.hasServer = true

	if region := voiceRegion(endpoint); region != p.voice.region {
		log.Printf("Player %s voice region changed from %q to %q", p.guildID, p.voice.region, region)
		p.voice.region = region
	}

	p.pushVoiceLocked()
}

// HandleVoiceStateUpdate consumes the "gateway state" signal. A missing
// channel or session id means the bot was disconnected from voice, which
// tears the whole player down immediately, bypassing the throttle.
func (p *Player) HandleVoiceStateUpdate(channelID, sessionID string, selfDeaf, selfMute bool) {
	if channelID == "" || sessionID == "" {
		p.manager.DestroyPlayer(p.guildID)
		return
	}

	var movedFrom string
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}

	if p.channelID != "" && channelID != p.channelID {
		movedFrom = p.channelID
	}
	p.channelID = channelID
	p.voice.sessionID = sessionID
	p.voice.selfDeaf = selfDeaf
	p.voice.selfMute = selfMute
	p.voice.hasState = true

	p.pushVoiceLocked()
	p.mu.Unlock()

	if movedFrom != "" {
		p.manager.emitPlayerMoved(p, movedFrom, channelID)
	}
}

// VoiceRegion returns the region derived from the last server update
func (p *Player) VoiceRegion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voice.region
}

// pushVoiceLocked transmits the reconciled credential set to the bound node,
// subject to the throttle. Partial state is held but never pushed.
func (p *Player) pushVoiceLocked() {
	if !p.voice.hasServer || !p.voice.hasState {
		return
	}

	now := time.Now()
	if now.Sub(p.voice.lastPush) < pushThrottle {
		return
	}
	p.voice.lastPush = now
	p.connected = true

	p.sendLocked(PlayerUpdate{Voice: &VoiceCredential{
		Token:     p.voice.token,
		Endpoint:  p.voice.endpoint,
		SessionID: p.voice.sessionID,
	}})
}
