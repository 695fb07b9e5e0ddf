package lavalink

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// testEngine fakes a remote node: it serves the websocket handshake and the
// one-shot HTTP endpoints, records every request and lets tests push frames
// down the duplex channel.
type testEngine struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	failOpens int
	opens     int
	conns     []*websocket.Conn
	requests  []engineRequest
}

type engineRequest struct {
	Method string
	Path   string
	Body   string
}

func newTestEngine(t *testing.T) *testEngine {
	e := &testEngine{t: t}
	e.srv = httptest.NewServer(http.HandlerFunc(e.handle))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *testEngine) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v4/websocket" {
		e.mu.Lock()
		e.opens++
		fail := e.failOpens > 0
		if fail {
			e.failOpens--
		}
		e.mu.Unlock()

		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := e.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.conns = append(e.conns, conn)
		e.mu.Unlock()

		conn.WriteJSON(map[string]interface{}{
			"op":        "ready",
			"resumed":   false,
			"sessionId": "sess-1",
		})
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		return
	}

	body, _ := io.ReadAll(r.Body)
	e.mu.Lock()
	e.requests = append(e.requests, engineRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	e.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/v4/loadtracks"):
		fmt.Fprint(w, `{"loadType":"search","data":[{"encoded":"tok-loaded","info":{"identifier":"vid-1","author":"Author","title":"Loaded Track","length":180000,"uri":"https://example.org/vid-1"}}]}`)
	case r.URL.Path == "/v4/info":
		fmt.Fprint(w, `{"version":{"semver":"4.0.8"},"sourceManagers":["youtube","http"],"filters":["volume","equalizer"]}`)
	case r.URL.Path == "/v4/stats":
		fmt.Fprint(w, `{"players":2,"playingPlayers":1,"uptime":1000,"cpu":{"cores":4,"systemLoad":0.25,"lavalinkLoad":0.1},"memory":{"free":100,"used":300,"allocated":400,"reservable":500},"frameStats":{"sent":3000,"deficit":0,"nulled":0}}`)
	default:
		fmt.Fprint(w, `{}`)
	}
}

// nodeConfig builds a NodeConfig pointing at this fake engine
func (e *testEngine) nodeConfig(name string, regions ...string) NodeConfig {
	u, err := url.Parse(e.srv.URL)
	require.NoError(e.t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(e.t, err)

	return NodeConfig{
		Name:     name,
		Host:     u.Hostname(),
		Port:     port,
		Password: "test-password",
		Regions:  regions,
	}
}

// setFailOpens makes the next n websocket upgrades fail
func (e *testEngine) setFailOpens(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOpens = n
}

// closeConns drops every live websocket server-side
func (e *testEngine) closeConns() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		c.Close()
	}
	e.conns = nil
}

// push writes one frame to the most recent live connection
func (e *testEngine) push(frame map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(e.t, e.conns, "no live websocket to push on")
	require.NoError(e.t, e.conns[len(e.conns)-1].WriteJSON(frame))
}

// pushRaw writes raw bytes to the most recent live connection
func (e *testEngine) pushRaw(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(e.t, e.conns, "no live websocket to push on")
	require.NoError(e.t, e.conns[len(e.conns)-1].WriteMessage(websocket.TextMessage, data))
}

// requestsMatching returns the recorded requests with the given method and
// path prefix
func (e *testEngine) requestsMatching(method, prefix string) []engineRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result []engineRequest
	for _, r := range e.requests {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			result = append(result, r)
		}
	}
	return result
}

func (e *testEngine) openCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens
}

// fakeGateway records outbound voice state commands
type fakeGateway struct {
	mu    sync.Mutex
	calls []gatewayCall
}

type gatewayCall struct {
	GuildID   string
	ChannelID string
	SelfDeaf  bool
	SelfMute  bool
}

func (g *fakeGateway) SendVoiceState(guildID, channelID string, selfDeaf, selfMute bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{guildID, channelID, selfDeaf, selfMute})
	return nil
}

func (g *fakeGateway) callsFor(guildID string) []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()

	var result []gatewayCall
	for _, c := range g.calls {
		if c.GuildID == guildID {
			result = append(result, c)
		}
	}
	return result
}

func newTestManager(gw VoiceGateway) *Manager {
	return NewManager(Config{
		UserID:         "4242",
		ReconnectBase:  20 * time.Millisecond,
		ReconnectTries: 3,
		IdleThreshold:  time.Hour,
	}, gw)
}

// newTestPlayer wires a connected player to a fake engine without going
// through the websocket handshake
func newTestPlayer(t *testing.T, guildID string) (*Player, *testEngine, *fakeGateway, *Manager) {
	e := newTestEngine(t)
	gw := &fakeGateway{}
	m := newTestManager(gw)

	n := newNode(m, e.nodeConfig("test"), 1)
	n.state = StateConnected
	n.rest.SetSessionID("sess-1")
	m.nodes["test"] = n

	p := newPlayer(m, guildID, n)
	p.connected = true
	m.players[guildID] = p
	n.addPlayer()

	return p, e, gw, m
}

// waitFor polls a condition until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msg)
		case <-ticker.C:
			if cond() {
				return
			}
		}
	}
}

func frame(t *testing.T, raw string) *simplejson.Json {
	doc, err := simplejson.NewJson([]byte(raw))
	require.NoError(t, err)
	return doc
}

func track(title string) *Track {
	return &Track{
		Encoded: "tok-" + title,
		Info: TrackInfo{
			Identifier: "id-" + title,
			Title:      title,
			Author:     "Author",
			Length:     3 * time.Minute,
		},
	}
}
