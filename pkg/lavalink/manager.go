package lavalink

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config tunes the manager and every node it owns
type Config struct {
	// UserID is the bot user id sent with every node handshake
	UserID string
	// ClientName identifies this client to the engine
	ClientName string
	// ReconnectBase is multiplied by the attempt count for the retry delay
	ReconnectBase time.Duration
	// ReconnectTries is how many consecutive failed opens destroy a node
	ReconnectTries int
	// IdleThreshold is how long a silent player survives the idle sweep.
	// Zero disables idle destruction.
	IdleThreshold time.Duration
	// StrictInfo surfaces a failed post-connect info fetch as an error
	// instead of a debug line
	StrictInfo bool
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = "Yotei"
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 5 * time.Second
	}
	if c.ReconnectTries <= 0 {
		c.ReconnectTries = 3
	}
	return c
}

// listeners are the caller-registered notification hooks. Push-style engine
// failures only ever surface here, never as a panic or a thrown error.
type listeners struct {
	nodeCreate    func(*Node)
	nodeReady     func(*Node)
	nodeDestroy   func(*Node)
	playerCreate  func(*Player)
	playerDestroy func(*Player)
	playerMoved   func(*Player, string, string)
	queueEnd      func(*Player)
	debug         func(string)
	err           func(error)
}

// Manager is the single source of truth mapping guild ids to players and
// node names to connections. It performs node selection for new players and
// enforces one live player per guild.
type Manager struct {
	config   Config
	gateway  VoiceGateway
	nodeSeq  int
	mu       sync.RWMutex
	nodes    map[string]*Node
	players  map[string]*Player
	rmu      sync.RWMutex
	resolver TrackResolver
	lmu      sync.RWMutex
	hooks    listeners
}

// NewManager creates an empty pool. The gateway is how the manager issues
// its one outbound voice command.
func NewManager(config Config, gateway VoiceGateway) *Manager {
	return &Manager{
		config:  config.withDefaults(),
		gateway: gateway,
		nodes:   make(map[string]*Node),
		players: make(map[string]*Player),
	}
}

// SetResolver installs the external track resolver used when a queued track
// has no playable token yet
func (m *Manager) SetResolver(r TrackResolver) {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	m.resolver = r
}

// Resolver returns the installed track resolver, or nil
func (m *Manager) Resolver() TrackResolver {
	m.rmu.RLock()
	defer m.rmu.RUnlock()
	return m.resolver
}

// AddNode registers a node and starts connecting it asynchronously. An
// existing node under the same name is destroyed first. A misconfigured
// entry fails synchronously and leaves the pool unchanged.
func (m *Manager) AddNode(config NodeConfig) error {
	if err := config.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	old := m.nodes[config.Name]
	if old != nil {
		delete(m.nodes, config.Name)
	}
	m.nodeSeq++
	node := newNode(m, config, m.nodeSeq)
	m.nodes[config.Name] = node
	m.mu.Unlock()

	if old != nil {
		old.close()
		m.emitNodeDestroy(old)
	}

	go node.connect()
	m.emitNodeCreate(node)
	return nil
}

// RemoveNode decommissions a node cleanly: pool removal and channel close,
// without touching the players that were bound to it. No-op for an unknown
// name.
func (m *Manager) RemoveNode(name string) {
	m.mu.Lock()
	node := m.nodes[name]
	delete(m.nodes, name)
	m.mu.Unlock()

	if node == nil {
		return
	}
	node.close()
	m.emitNodeDestroy(node)
}

// Node returns the node registered under name, or nil
func (m *Manager) Node(name string) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[name]
}

// Nodes returns every node in the pool
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		result = append(result, n)
	}
	return result
}

// Player returns the live player for a guild, or nil
func (m *Manager) Player(guildID string) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[guildID]
}

// Players returns every live player
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		result = append(result, p)
	}
	return result
}

// SelectNodes returns the connected nodes eligible for a new player, ordered
// ascending by penalty with ties broken by insertion order. A non-empty
// region restricts the result to nodes configured to serve it; an empty
// region-filtered result is returned as-is, the caller decides whether to
// retry without the filter.
func (m *Manager) SelectNodes(region string) []*Node {
	m.mu.RLock()
	candidates := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		candidates = append(candidates, n)
	}
	m.mu.RUnlock()

	type scored struct {
		node    *Node
		penalty int
	}
	eligible := make([]scored, 0, len(candidates))
	for _, n := range candidates {
		if n.State() != StateConnected {
			continue
		}
		if region != "" && !servesRegion(n.config.Regions, region) {
			continue
		}
		eligible = append(eligible, scored{node: n, penalty: n.Penalty()})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].penalty != eligible[j].penalty {
			return eligible[i].penalty < eligible[j].penalty
		}
		return eligible[i].node.seq < eligible[j].node.seq
	})

	result := make([]*Node, len(eligible))
	for i, s := range eligible {
		result[i] = s.node
	}
	return result
}

func servesRegion(regions []string, region string) bool {
	for _, r := range regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// CreatePlayer returns the existing player for a guild when it already has a
// voice channel assigned, otherwise builds a new one on the best available
// node, superseding any stale player for the guild.
func (m *Manager) CreatePlayer(guildID, region string) (*Player, error) {
	if existing := m.Player(guildID); existing != nil && existing.ChannelID() != "" {
		return existing, nil
	}

	nodes := m.SelectNodes(region)
	if len(nodes) == 0 {
		return nil, ErrNoNodesAvailable
	}
	node := nodes[0]

	player := newPlayer(m, guildID, node)

	m.mu.Lock()
	stale := m.players[guildID]
	m.players[guildID] = player
	m.mu.Unlock()

	node.addPlayer()
	if stale != nil {
		stale.destroy()
		m.emitPlayerDestroy(stale)
	}
	m.emitPlayerCreate(player)
	return player, nil
}

// DestroyPlayer tears down the player for a guild. No-op for a guild without
// one; calling it twice is the same as calling it once.
func (m *Manager) DestroyPlayer(guildID string) {
	m.mu.Lock()
	player := m.players[guildID]
	delete(m.players, guildID)
	m.mu.Unlock()

	if player == nil {
		return
	}
	player.destroy()
	m.emitPlayerDestroy(player)
}

// SweepIdle destroys every player that is not playing, not paused, has an
// empty queue and has been inactive past the configured threshold. Returns
// how many players were destroyed. Meant to be driven externally on a
// schedule.
func (m *Manager) SweepIdle() int {
	if m.config.IdleThreshold <= 0 {
		return 0
	}

	var idle []string
	for _, p := range m.Players() {
		if p.idle(m.config.IdleThreshold) {
			idle = append(idle, p.GuildID())
		}
	}

	for _, guildID := range idle {
		log.Printf("Destroying idle player for guild %s", guildID)
		m.DestroyPlayer(guildID)
	}
	return len(idle)
}

func (p *Player) idle(threshold time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing && !p.paused && p.queue.Len() == 0 && time.Since(p.lastActive) > threshold
}

// maybeDestroyIdle runs the idle check for one guild, used right after a
// queue runs dry
func (m *Manager) maybeDestroyIdle(guildID string) {
	if m.config.IdleThreshold <= 0 {
		return
	}
	player := m.Player(guildID)
	if player != nil && player.idle(m.config.IdleThreshold) {
		m.DestroyPlayer(guildID)
	}
}

// handleNodeReady is called by a node once the engine confirms its session
func (m *Manager) handleNodeReady(node *Node) {
	m.emitDebug("node %s: ready (session %s)", node.Name(), node.SessionID())
	m.emitNodeReady(node)
}

// handleNodeFatal removes a node whose reconnect attempts are exhausted and
// force-stops every player bound to it. Destruction is two-phase: affected
// players are collected first, then destroyed, so the registry is never
// mutated mid-iteration. Individual cleanup failures never abort the
// cascade.
func (m *Manager) handleNodeFatal(node *Node, cause error) {
	m.mu.Lock()
	if m.nodes[node.Name()] == node {
		delete(m.nodes, node.Name())
	}
	var affected []*Player
	for guildID, p := range m.players {
		if p.node == node {
			affected = append(affected, p)
			delete(m.players, guildID)
		}
	}
	m.mu.Unlock()

	for _, p := range affected {
		m.destroyCascaded(p)
	}

	node.close()
	node.resetStats()

	m.emitError(cause)
	m.emitNodeDestroy(node)
}

func (m *Manager) destroyCascaded(p *Player) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Player %s cleanup panicked during node teardown: %v", p.GuildID(), r)
		}
	}()
	p.destroy()
	m.emitPlayerDestroy(p)
}

// Listener registration. Hooks run synchronously on whatever goroutine
// emitted them, so they should return quickly.

// OnNodeCreate registers a hook run when a node joins the pool
func (m *Manager) OnNodeCreate(fn func(*Node)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.nodeCreate = fn
}

// OnNodeReady registers a hook run when a node's session is confirmed
func (m *Manager) OnNodeReady(fn func(*Node)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.nodeReady = fn
}

// OnNodeDestroy registers a hook run when a node leaves the pool
func (m *Manager) OnNodeDestroy(fn func(*Node)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.nodeDestroy = fn
}

// OnPlayerCreate registers a hook run when a player is created
func (m *Manager) OnPlayerCreate(fn func(*Player)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.playerCreate = fn
}

// OnPlayerDestroy registers a hook run when a player is destroyed
func (m *Manager) OnPlayerDestroy(fn func(*Player)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.playerDestroy = fn
}

// OnPlayerMoved registers a hook run when a player's voice channel changes
func (m *Manager) OnPlayerMoved(fn func(p *Player, oldChannel, newChannel string)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.playerMoved = fn
}

// OnQueueEnd registers a hook run when a player's queue runs dry
func (m *Manager) OnQueueEnd(fn func(*Player)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.queueEnd = fn
}

// OnDebug registers a hook for debug notifications
func (m *Manager) OnDebug(fn func(string)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.debug = fn
}

// OnError registers a hook for asynchronous error notifications
func (m *Manager) OnError(fn func(error)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.hooks.err = fn
}

func (m *Manager) emitNodeCreate(n *Node) {
	m.lmu.RLock()
	fn := m.hooks.nodeCreate
	m.lmu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

func (m *Manager) emitNodeReady(n *Node) {
	m.lmu.RLock()
	fn := m.hooks.nodeReady
	m.lmu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

func (m *Manager) emitNodeDestroy(n *Node) {
	m.lmu.RLock()
	fn := m.hooks.nodeDestroy
	m.lmu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

func (m *Manager) emitPlayerCreate(p *Player) {
	m.lmu.RLock()
	fn := m.hooks.playerCreate
	m.lmu.RUnlock()
	if fn != nil {
		fn(p)
	}
}

func (m *Manager) emitPlayerDestroy(p *Player) {
	m.lmu.RLock()
	fn := m.hooks.playerDestroy
	m.lmu.RUnlock()
	if fn != nil {
		fn(p)
	}
}

func (m *Manager) emitPlayerMoved(p *Player, oldChannel, newChannel string) {
	m.lmu.RLock()
	fn := m.hooks.playerMoved
	m.lmu.RUnlock()
	if fn != nil {
		fn(p, oldChannel, newChannel)
	}
}

func (m *Manager) emitQueueEnd(p *Player) {
	m.lmu.RLock()
	fn := m.hooks.queueEnd
	m.lmu.RUnlock()
	if fn != nil {
		fn(p)
	}
}

func (m *Manager) emitDebug(format string, args ...interface{}) {
	m.lmu.RLock()
	fn := m.hooks.debug
	m.lmu.RUnlock()
	if fn != nil {
		fn(fmt.Sprintf(format, args...))
	}
}

func (m *Manager) emitError(err error) {
	m.lmu.RLock()
	fn := m.hooks.err
	m.lmu.RUnlock()
	if fn != nil {
		fn(err)
		return
	}
	log.Printf("Lavalink error: %v", err)
}
