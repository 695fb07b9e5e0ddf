package lavalink

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/gorilla/websocket"
)

// statsCooldown is how long a pushed or fetched snapshot stays authoritative.
// Stats reads inside the window return the cache instead of hitting the node.
const statsCooldown = 60 * time.Second

// NodeConfig identifies one remote engine and how to reach it
type NodeConfig struct {
	Name     string
	Host     string
	Port     int
	Password string
	Secure   bool
	// Regions this node should serve; matched case-insensitively during
	// region-filtered selection
	Regions []string
}

func (c NodeConfig) validate() error {
	if c.Name == "" || c.Host == "" || c.Port == 0 || c.Password == "" {
		return ErrNodeConfigInvalid
	}
	return nil
}

// Node owns the duplex channel to one remote engine: its connect/reconnect
// lifecycle, the sequential inbound frame loop, and the health snapshot that
// feeds the selection penalty.
type Node struct {
	manager *Manager
	config  NodeConfig
	rest    *RestClient
	seq     int // insertion order, breaks penalty ties

	mu           sync.RWMutex
	state        NodeState
	conn         *websocket.Conn
	sessionID    string
	attempts     int
	retryTimer   *time.Timer
	destroyed    bool
	boundPlayers int
	calls        int64
	stats        *NodeStats
	statsAt      time.Time
}

func newNode(manager *Manager, config NodeConfig, seq int) *Node {
	n := &Node{
		manager: manager,
		config:  config,
		seq:     seq,
		state:   StateDisconnected,
	}
	n.rest = NewRestClient(n.restURL(), config.Password, n.countCall)
	return n
}

// Name returns the node's identity key in the pool
func (n *Node) Name() string {
	return n.config.Name
}

// Config returns the configuration the node was created with
func (n *Node) Config() NodeConfig {
	return n.config
}

// Rest returns the request/response half of the node's transport
func (n *Node) Rest() *RestClient {
	return n.rest
}

// State returns the current connection state
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// SessionID returns the session identifier the engine assigned on ready
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// CallCount returns how many one-shot requests this node has served. It is a
// cheap secondary load signal next to Penalty.
func (n *Node) CallCount() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.calls
}

// PlayerCount returns the number of players currently bound to this node
func (n *Node) PlayerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.boundPlayers
}

// CachedStats returns the last health snapshot without blocking, or nil if
// none has arrived yet
func (n *Node) CachedStats() *NodeStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// Stats returns the node's health snapshot, fetching a fresh one only when
// the cached snapshot is older than the cooldown window.
func (n *Node) Stats(ctx context.Context) (*NodeStats, error) {
	n.mu.RLock()
	cached, at := n.stats, n.statsAt
	n.mu.RUnlock()

	if cached != nil && time.Since(at) < statsCooldown {
		return cached, nil
	}

	stats, err := n.rest.Stats(ctx)
	if err != nil {
		return nil, err
	}
	n.setStats(stats)
	return stats, nil
}

func (n *Node) countCall() {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *Node) addPlayer() {
	n.mu.Lock()
	n.boundPlayers++
	n.mu.Unlock()
}

func (n *Node) removePlayer() {
	n.mu.Lock()
	if n.boundPlayers > 0 {
		n.boundPlayers--
	}
	n.mu.Unlock()
}

func (n *Node) scheme(ws bool) string {
	if ws {
		if n.config.Secure {
			return "wss"
		}
		return "ws"
	}
	if n.config.Secure {
		return "https"
	}
	return "http"
}

func (n *Node) restURL() string {
	return fmt.Sprintf("%s://%s:%d", n.scheme(false), n.config.Host, n.config.Port)
}

func (n *Node) wsURL() string {
	return fmt.Sprintf("%s://%s:%d/v4/websocket", n.scheme(true), n.config.Host, n.config.Port)
}

// connect opens a fresh duplex channel, tearing down any existing one first.
// Safe to call at any point in the lifecycle.
func (n *Node) connect() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.state = StateConnecting
	sessionID := n.sessionID
	n.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", n.config.Password)
	header.Set("User-Id", n.manager.config.UserID)
	header.Set("Client-Name", n.manager.config.ClientName)
	if sessionID != "" {
		// Ask the engine to resume the previous session instead of starting
		// a blank one.
		header.Set("Session-Id", sessionID)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(n.wsURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		n.manager.emitDebug("node %s: open failed: %v", n.config.Name, err)
		n.scheduleReconnect()
		return
	}

	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		conn.Close()
		return
	}
	n.conn = conn
	n.state = StateConnected
	n.attempts = 0
	n.mu.Unlock()

	log.Printf("Node %s connected (%s)", n.config.Name, n.wsURL())

	go n.readLoop(conn)
	go n.fetchInfo()
}

// fetchInfo asynchronously pulls the engine capability document after a
// connect. Failure is non-fatal and only logged unless StrictInfo is set.
func (n *Node) fetchInfo() {
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	info, err := n.rest.Info(ctx)
	if err != nil {
		if n.manager.config.StrictInfo {
			n.manager.emitError(fmt.Errorf("node %s: info fetch failed: %v", n.config.Name, err))
		} else {
			n.manager.emitDebug("node %s: info fetch failed: %v", n.config.Name, err)
		}
		return
	}
	n.manager.emitDebug("node %s: engine version %s", n.config.Name, info.Version)
}

// readLoop consumes inbound frames sequentially for one websocket. One loop
// runs per live connection; loops across nodes are independent.
func (n *Node) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.mu.Lock()
			if n.destroyed || n.conn != conn {
				// A newer connect superseded this channel; nothing to do.
				n.mu.Unlock()
				return
			}
			n.conn = nil
			n.mu.Unlock()

			n.manager.emitDebug("node %s: channel closed: %v", n.config.Name, err)
			n.scheduleReconnect()
			return
		}
		n.handleFrame(data)
	}
}

// handleFrame demultiplexes one inbound frame by its op tag. Malformed frames
// are logged and dropped, never fatal to the connection.
func (n *Node) handleFrame(data []byte) {
	frame, err := simplejson.NewJson(data)
	if err != nil {
		log.Printf("Node %s dropped malformed frame: %v", n.config.Name, err)
		return
	}

	switch op := frame.Get("op").MustString(); op {
	case "stats":
		n.setStats(decodeStats(frame))
	case "ready":
		n.handleReady(frame)
	default:
		guildID := frame.Get("guildId").MustString()
		player := n.manager.Player(guildID)
		if player == nil {
			// Frames for unknown sessions are dropped silently.
			return
		}
		player.handleFrame(op, frame)
	}
}

func (n *Node) handleReady(frame *simplejson.Json) {
	sessionID := frame.Get("sessionId").MustString()

	n.mu.Lock()
	changed := sessionID != "" && sessionID != n.sessionID
	if changed {
		n.sessionID = sessionID
	}
	n.mu.Unlock()

	if changed {
		n.rest.SetSessionID(sessionID)
	}
	if frame.Get("resumed").MustBool() {
		n.manager.emitDebug("node %s: session %s resumed", n.config.Name, sessionID)
	}
	n.manager.handleNodeReady(n)
}

func (n *Node) setStats(stats *NodeStats) {
	n.mu.Lock()
	n.stats = stats
	n.statsAt = time.Now()
	n.mu.Unlock()
}

func (n *Node) resetStats() {
	n.mu.Lock()
	n.stats = &NodeStats{}
	n.statsAt = time.Time{}
	n.mu.Unlock()
}

// scheduleReconnect runs the retry policy after a failed open or a dropped
// channel. The delay grows linearly with the attempt count; once the counter
// reaches the configured maximum, the node is destroyed for good.
func (n *Node) scheduleReconnect() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}

	n.attempts++
	attempt := n.attempts
	if attempt >= n.manager.config.ReconnectTries {
		n.mu.Unlock()
		n.manager.handleNodeFatal(n, fmt.Errorf("node %s: gave up after %d reconnect attempts", n.config.Name, attempt))
		return
	}

	n.state = StateReconnecting
	delay := n.manager.config.ReconnectBase * time.Duration(attempt)
	n.retryTimer = time.AfterFunc(delay, n.connect)
	n.mu.Unlock()

	log.Printf("Node %s reconnecting in %v (attempt %d/%d)", n.config.Name, delay, attempt, n.manager.config.ReconnectTries)
}

// close tears the node down locally: cancels any pending retry, closes the
// channel and pins the state to Disconnected. Pool removal is the manager's
// job.
func (n *Node) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.destroyed = true
	if n.retryTimer != nil {
		n.retryTimer.Stop()
		n.retryTimer = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.state = StateDisconnected
}
