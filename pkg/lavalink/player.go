package lavalink

import (
	"context"
	"fmt"
	"sync"
	"time"

	simplejson "github.com/bitly/go-simplejson"
)

// eventKind is the closed set of engine lifecycle events the state machine
// understands. Anything else lands in the unhandled branch.
type eventKind int

const (
	eventUnknown eventKind = iota
	eventTrackStart
	eventTrackChange
	eventTrackEnd
	eventTrackException
	eventTrackStuck
	eventWebSocketClosed
)

func parseEventKind(s string) eventKind {
	switch s {
	case "TrackStartEvent":
		return eventTrackStart
	case "TrackChangeEvent":
		return eventTrackChange
	case "TrackEndEvent":
		return eventTrackEnd
	case "TrackExceptionEvent":
		return eventTrackException
	case "TrackStuckEvent":
		return eventTrackStuck
	case "WebSocketClosedEvent":
		return eventWebSocketClosed
	default:
		return eventUnknown
	}
}

// Player is the playback state machine for one guild, bound to exactly one
// node. All transitions for the same player are serialized behind its mutex;
// players for different guilds proceed fully in parallel.
type Player struct {
	manager *Manager
	guildID string
	queue   *Queue
	node    *Node // bound at construction, never rebound

	mu                sync.Mutex
	channelID         string
	voice             voiceLink
	current           *Track
	playing           bool
	paused            bool
	position          time.Duration
	volume            int
	loop              LoopMode
	connected         bool
	destroyed         bool
	lastActive        time.Time
	store             map[string]interface{}
	nowPlayingCleanup func() error
}

func newPlayer(manager *Manager, guildID string, node *Node) *Player {
	return &Player{
		manager:    manager,
		guildID:    guildID,
		node:       node,
		queue:      NewQueue(),
		volume:     100,
		lastActive: time.Now(),
		store:      make(map[string]interface{}),
	}
}

// GuildID returns the guild this player belongs to
func (p *Player) GuildID() string {
	return p.guildID
}

// Node returns the node the player is bound to
func (p *Player) Node() *Node {
	return p.node
}

// Queue returns the player's pending track queue
func (p *Player) Queue() *Queue {
	return p.queue
}

// ChannelID returns the bound voice channel id
func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// Current returns the track the engine is playing, or nil
func (p *Player) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Playing reports whether a track is active (paused still counts)
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Paused reports whether playback is paused
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Position returns the last known playback position
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Volume returns the current volume (0..200)
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Loop returns the current loop mode
func (p *Player) Loop() LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// Connected reports whether the voice link has been established
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// LastActive returns when the player last did something; the idle sweep uses
// this
func (p *Player) LastActive() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActive
}

// Set stores an opaque value on the player for caller use; the store is
// cleared on destroy
func (p *Player) Set(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store[key] = value
}

// Get returns a value previously stored with Set
func (p *Player) Get(key string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.store[key]
	return v, ok
}

// Delete removes a stored value
func (p *Player) Delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.store, key)
}

// SetNowPlayingCleanup registers a best-effort cleanup hook run once when the
// current track ends, typically to delete a now-playing message
func (p *Player) SetNowPlayingCleanup(fn func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowPlayingCleanup = fn
}

// Connect binds the player to a voice channel by issuing the gateway voice
// state command. The voice link restarts its handshake from scratch.
func (p *Player) Connect(channelID string, selfDeaf, selfMute bool) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.channelID = channelID
	p.voice.reset()
	p.lastActive = time.Now()
	p.mu.Unlock()

	return p.manager.gateway.SendVoiceState(p.guildID, channelID, selfDeaf, selfMute)
}

// Play dequeues the head of the queue and starts it on the bound node.
// A play with an empty queue is a no-op.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked()
}

func (p *Player) playLocked() error {
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	if !p.connected {
		return ErrPlayerNotConnected
	}

	track := p.queue.Next()
	if track == nil {
		return nil
	}

	if track.Encoded == "" {
		resolved, err := p.resolveLocked(track)
		if err != nil {
			return fmt.Errorf("resolve %q: %v", track.Info.Identifier, err)
		}
		track = resolved
	}

	p.current = track
	p.playing = true
	p.paused = false
	p.position = 0
	p.lastActive = time.Now()

	p.sendLocked(PlayerUpdate{EncodedTrack: &track.Encoded})
	return nil
}

// resolveLocked fills in a playable token via the external resolver. Tracks
// enqueued straight from a load result already carry one.
func (p *Player) resolveLocked(track *Track) (*Track, error) {
	resolver := p.manager.Resolver()
	if resolver == nil {
		return nil, fmt.Errorf("no resolver configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	resolved, err := resolver.Resolve(ctx, p.node, track.Info.Identifier)
	if err != nil {
		return nil, err
	}
	if resolved == nil || resolved.Encoded == "" {
		return nil, fmt.Errorf("resolver returned no playable track")
	}
	return resolved, nil
}

// Pause pauses or resumes playback
func (p *Player) Pause(flag bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	p.pauseLocked(flag)
	return nil
}

func (p *Player) pauseLocked(flag bool) {
	p.paused = flag
	p.lastActive = time.Now()
	p.sendLocked(PlayerUpdate{Paused: &flag})
}

// Seek moves the playback position. Negative positions are rejected; seeking
// while nothing plays is a no-op.
func (p *Player) Seek(position time.Duration) error {
	if position < 0 {
		return ErrNegativePosition
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	if !p.playing {
		return nil
	}

	p.position = position
	p.lastActive = time.Now()
	p.sendLocked(PlayerUpdate{Position: &position})
	return nil
}

// Stop clears the current track on the engine and drops back to idle
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	p.current = nil
	p.playing = false
	p.paused = false
	p.position = 0
	p.lastActive = time.Now()
	p.sendLocked(PlayerUpdate{ClearTrack: true})
}

// Skip stops the current track and, if still marked playing, starts the next
// one. The engine's end event for the stopped track drives the actual queue
// advance.
func (p *Player) Skip() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}

	p.stopLocked()
	if p.playing {
		return p.playLocked()
	}
	return nil
}

// SetVolume sets the playback volume, 0..200 inclusive
func (p *Player) SetVolume(volume int) error {
	if volume < 0 || volume > 200 {
		return ErrVolumeOutOfRange
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}

	p.volume = volume
	p.lastActive = time.Now()
	p.sendLocked(PlayerUpdate{Volume: &volume})
	return nil
}

// SetLoop sets the loop policy applied when tracks finish
func (p *Player) SetLoop(mode LoopMode) error {
	if mode != LoopNone && mode != LoopTrack && mode != LoopQueue {
		return ErrInvalidLoopMode
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	p.loop = mode
	return nil
}

// SetFilters pushes a filter parameter bundle verbatim to the bound node
func (p *Player) SetFilters(filters map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	p.lastActive = time.Now()
	p.sendLocked(PlayerUpdate{Filters: filters})
	return nil
}

// Shuffle permutes the pending queue in place
func (p *Player) Shuffle() {
	p.queue.Shuffle()
}

// handleFrame consumes a session-scoped frame demultiplexed by the node
func (p *Player) handleFrame(op string, frame *simplejson.Json) {
	switch op {
	case "playerUpdate":
		state := frame.Get("state")
		p.mu.Lock()
		p.position = time.Duration(state.Get("position").MustInt64()) * time.Millisecond
		p.mu.Unlock()
	case "event":
		p.handleEvent(frame)
	default:
		p.manager.emitError(fmt.Errorf("player %s: unhandled op %q", p.guildID, op))
	}
}

func (p *Player) handleEvent(frame *simplejson.Json) {
	kind := parseEventKind(frame.Get("type").MustString())

	// Hooks may read player state, so emissions are collected under the lock
	// and fired only after it is released.
	var notify []func()

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}

	switch kind {
	case eventTrackStart, eventTrackChange:
		p.playing = true
		p.paused = false
		p.lastActive = time.Now()
	case eventTrackEnd:
		notify = p.handleTrackEndLocked(frame.Get("reason").MustString())
	case eventTrackException:
		err := fmt.Errorf("player %s: track exception: %s", p.guildID, frame.Get("exception").Get("message").MustString())
		p.stopLocked()
		notify = append(notify, func() { p.manager.emitError(err) })
	case eventTrackStuck:
		err := fmt.Errorf("player %s: track stuck for %dms", p.guildID, frame.Get("thresholdMs").MustInt64())
		p.stopLocked()
		notify = append(notify, func() { p.manager.emitError(err) })
	case eventWebSocketClosed:
		notify = p.handleSocketClosedLocked(frame.Get("code").MustInt(), frame.Get("reason").MustString())
	default:
		err := fmt.Errorf("player %s: unhandled event type %q", p.guildID, frame.Get("type").MustString())
		notify = append(notify, func() { p.manager.emitError(err) })
	}
	p.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// handleTrackEndLocked applies the loop policy and continues playback. The
// ordering here is load-bearing: requeue decision, then exhaustion check,
// then an unconditional play attempt. Returns the notifications to fire once
// the caller drops the lock.
func (p *Player) handleTrackEndLocked(reason string) []func() {
	if reason == "replaced" {
		// A newer play superseded this track; its own start event carries
		// the state forward.
		return nil
	}

	finished := p.current
	p.current = nil
	p.position = 0
	p.lastActive = time.Now()

	if p.nowPlayingCleanup != nil {
		// Best effort only; a failed message delete must not stall playback.
		_ = p.nowPlayingCleanup()
		p.nowPlayingCleanup = nil
	}

	switch reason {
	case "loadFailed", "cleanup":
		// Advance without honoring the loop policy; the finished track is
		// dropped entirely.
	default:
		if finished != nil {
			switch p.loop {
			case LoopTrack:
				p.queue.AddFront(finished)
			case LoopQueue:
				p.queue.Add(finished)
			default:
				p.queue.PushHistory(finished)
			}
		}
	}

	var notify []func()
	if p.queue.Len() == 0 {
		p.playing = false
		p.paused = false
		notify = append(notify, func() { p.manager.emitQueueEnd(p) })
		go p.manager.maybeDestroyIdle(p.guildID)
	}

	if err := p.playLocked(); err != nil && err != ErrPlayerNotConnected && err != ErrPlayerDestroyed {
		err := fmt.Errorf("player %s: continue after track end: %v", p.guildID, err)
		notify = append(notify, func() { p.manager.emitError(err) })
	}
	return notify
}

// handleSocketClosedLocked reacts to the engine losing its own voice socket.
// Two close codes mean the Discord voice session was invalidated and a fresh
// handshake fixes it; everything else just gets surfaced. Returns the
// notifications to fire once the caller drops the lock.
func (p *Player) handleSocketClosedLocked(code int, reason string) []func() {
	if code == voiceCloseSessionInvalid || code == voiceCloseSessionTimeout {
		p.voice.reset()
		guildID, channelID := p.guildID, p.channelID
		selfDeaf, selfMute := p.voice.selfDeaf, p.voice.selfMute
		go func() {
			if err := p.manager.gateway.SendVoiceState(guildID, channelID, selfDeaf, selfMute); err != nil {
				p.manager.emitError(fmt.Errorf("player %s: voice re-handshake failed: %v", guildID, err))
			}
		}()
	}

	p.pauseLocked(true)
	return []func(){func() {
		p.manager.emitDebug("player %s: voice socket closed (code %d): %s", p.guildID, code, reason)
	}}
}

// sendLocked issues a player patch without waiting for the acknowledgement.
// Transport failures come back through the error listener, never to the
// caller of the state machine operation.
func (p *Player) sendLocked(update PlayerUpdate) {
	if p.destroyed {
		return
	}

	node := p.node
	guildID := p.guildID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
		defer cancel()
		if err := node.Rest().UpdatePlayer(ctx, guildID, update); err != nil {
			p.manager.emitError(fmt.Errorf("player %s: update failed: %v", guildID, err))
		}
	}()
}

// destroy tears the player down. Called by the manager after the player has
// been removed from the registry; safe to call more than once.
func (p *Player) destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	node := p.node
	p.current = nil
	p.playing = false
	p.paused = false
	p.connected = false
	p.queue.Clear()
	p.store = make(map[string]interface{})
	p.nowPlayingCleanup = nil
	p.mu.Unlock()

	node.removePlayer()

	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	if err := node.Rest().DestroyPlayer(ctx, p.guildID); err != nil {
		p.manager.emitDebug("player %s: engine destroy failed: %v", p.guildID, err)
	}
	if err := p.manager.gateway.SendVoiceState(p.guildID, "", false, false); err != nil {
		p.manager.emitDebug("player %s: voice disconnect failed: %v", p.guildID, err)
	}
}
