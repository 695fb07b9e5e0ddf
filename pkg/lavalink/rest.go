package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/pkg/errors"
)

// restTimeout bounds every one-shot request so a dead node can never hang a
// caller; failures surface as events, not as blocked goroutines.
const restTimeout = 10 * time.Second

// RestClient is the request/response half of a node's transport. The push
// half lives on the websocket owned by Node.
type RestClient struct {
	baseURL  string
	password string
	client   *http.Client
	onCall   func()

	mu        sync.RWMutex
	sessionID string
}

// NewRestClient creates a client for one node's HTTP API
func NewRestClient(baseURL, password string, onCall func()) *RestClient {
	return &RestClient{
		baseURL:  baseURL,
		password: password,
		onCall:   onCall,
		client:   &http.Client{Timeout: restTimeout},
	}
}

// SetSessionID records the websocket session id the engine assigned; player
// endpoints are scoped under it
func (r *RestClient) SetSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// SessionID returns the currently assigned session id
func (r *RestClient) SessionID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionID
}

// PlayerUpdate is a partial patch applied to one player on the engine. Nil
// and zero fields are left untouched. ClearTrack sends an explicit null so
// the engine drops its current track; at most one of EncodedTrack and
// Identifier may be set.
type PlayerUpdate struct {
	EncodedTrack *string
	ClearTrack   bool
	Identifier   string
	Position     *time.Duration
	Paused       *bool
	Volume       *int
	Voice        *VoiceCredential
	Filters      map[string]interface{}
}

// VoiceCredential is the reconciled voice credential triple pushed to a node
type VoiceCredential struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// Validate rejects patches the engine would reject, before any network call
func (u PlayerUpdate) Validate() error {
	if u.EncodedTrack != nil && u.Identifier != "" {
		return ErrConflictingPatch
	}
	return nil
}

// MarshalJSON emits only the fields the patch actually sets
func (u PlayerUpdate) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{})

	if u.ClearTrack {
		doc["encodedTrack"] = nil
	} else if u.EncodedTrack != nil {
		doc["encodedTrack"] = *u.EncodedTrack
	}
	if u.Identifier != "" {
		doc["identifier"] = u.Identifier
	}
	if u.Position != nil {
		doc["position"] = u.Position.Milliseconds()
	}
	if u.Paused != nil {
		doc["paused"] = *u.Paused
	}
	if u.Volume != nil {
		doc["volume"] = *u.Volume
	}
	if u.Voice != nil {
		doc["voice"] = u.Voice
	}
	if len(u.Filters) > 0 {
		doc["filters"] = u.Filters
	}

	return json.Marshal(doc)
}

// UpdatePlayer applies a partial patch to the player for guildID
func (r *RestClient) UpdatePlayer(ctx context.Context, guildID string, update PlayerUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(update)
	if err != nil {
		return errors.Wrap(err, "encode player update")
	}

	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=false", r.SessionID(), guildID)
	_, err = r.do(ctx, http.MethodPatch, path, body)
	return err
}

// DestroyPlayer removes the player for guildID from the engine
func (r *RestClient) DestroyPlayer(ctx context.Context, guildID string) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s", r.SessionID(), guildID)
	_, err := r.do(ctx, http.MethodDelete, path, nil)
	return err
}

// LoadTracks asks the engine to resolve an identifier (URL or search query)
// into playable tracks
func (r *RestClient) LoadTracks(ctx context.Context, identifier string) ([]*Track, error) {
	data, err := r.do(ctx, http.MethodGet, "/v4/loadtracks?identifier="+url.QueryEscape(identifier), nil)
	if err != nil {
		return nil, err
	}

	doc, err := simplejson.NewJson(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode load result")
	}

	loadType := doc.Get("loadType").MustString()
	switch loadType {
	case "track":
		return []*Track{decodeTrack(doc.Get("data"))}, nil
	case "playlist":
		return decodeTrackList(doc.Get("data").Get("tracks")), nil
	case "search":
		return decodeTrackList(doc.Get("data")), nil
	case "error":
		return nil, fmt.Errorf("track load failed: %s", doc.Get("data").Get("message").MustString())
	default:
		return nil, nil
	}
}

// DecodeTrack expands an encoded track token back into its metadata
func (r *RestClient) DecodeTrack(ctx context.Context, encoded string) (*Track, error) {
	data, err := r.do(ctx, http.MethodGet, "/v4/decodetrack?encodedTrack="+url.QueryEscape(encoded), nil)
	if err != nil {
		return nil, err
	}

	doc, err := simplejson.NewJson(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode track")
	}
	return decodeTrack(doc), nil
}

// Info fetches the engine capability document
func (r *RestClient) Info(ctx context.Context) (*NodeInfo, error) {
	data, err := r.do(ctx, http.MethodGet, "/v4/info", nil)
	if err != nil {
		return nil, err
	}

	doc, err := simplejson.NewJson(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode node info")
	}

	info := &NodeInfo{
		Version: doc.Get("version").Get("semver").MustString(),
	}
	for _, v := range doc.Get("sourceManagers").MustArray() {
		if s, ok := v.(string); ok {
			info.SourceManagers = append(info.SourceManagers, s)
		}
	}
	for _, v := range doc.Get("filters").MustArray() {
		if s, ok := v.(string); ok {
			info.Filters = append(info.Filters, s)
		}
	}
	return info, nil
}

// Stats performs a live stats fetch
func (r *RestClient) Stats(ctx context.Context) (*NodeStats, error) {
	data, err := r.do(ctx, http.MethodGet, "/v4/stats", nil)
	if err != nil {
		return nil, err
	}

	doc, err := simplejson.NewJson(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode stats")
	}
	return decodeStats(doc), nil
}

func (r *RestClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if r.onCall != nil {
		r.onCall()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", r.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	return data, nil
}

func decodeTrack(doc *simplejson.Json) *Track {
	return &Track{
		Encoded: doc.Get("encoded").MustString(),
		Info: TrackInfo{
			Identifier: doc.Get("info").Get("identifier").MustString(),
			Author:     doc.Get("info").Get("author").MustString(),
			Title:      doc.Get("info").Get("title").MustString(),
			Length:     time.Duration(doc.Get("info").Get("length").MustInt64()) * time.Millisecond,
			URI:        doc.Get("info").Get("uri").MustString(),
		},
	}
}

func decodeTrackList(doc *simplejson.Json) []*Track {
	tracks := make([]*Track, 0)
	for i := range doc.MustArray() {
		tracks = append(tracks, decodeTrack(doc.GetIndex(i)))
	}
	return tracks
}

// decodeStats parses a stats document, defaulting every missing numeric field
// to zero and guarding the derived percentages against division by zero.
func decodeStats(doc *simplejson.Json) *NodeStats {
	stats := &NodeStats{
		Players:        doc.Get("players").MustInt(),
		PlayingPlayers: doc.Get("playingPlayers").MustInt(),
		Uptime:         time.Duration(doc.Get("uptime").MustInt64()) * time.Millisecond,
		CPU: CPUStats{
			Cores:        doc.Get("cpu").Get("cores").MustInt(),
			SystemLoad:   doc.Get("cpu").Get("systemLoad").MustFloat64(),
			LavalinkLoad: doc.Get("cpu").Get("lavalinkLoad").MustFloat64(),
		},
		Memory: MemoryStats{
			Free:       doc.Get("memory").Get("free").MustInt64(),
			Used:       doc.Get("memory").Get("used").MustInt64(),
			Allocated:  doc.Get("memory").Get("allocated").MustInt64(),
			Reservable: doc.Get("memory").Get("reservable").MustInt64(),
		},
		Frames: FrameStats{
			Sent:    doc.Get("frameStats").Get("sent").MustInt(),
			Deficit: doc.Get("frameStats").Get("deficit").MustInt(),
			Nulled:  doc.Get("frameStats").Get("nulled").MustInt(),
		},
		Ping: time.Duration(doc.Get("ping").MustInt64()) * time.Millisecond,
	}

	if stats.CPU.Cores > 0 {
		stats.CPU.LoadPercent = 100 * stats.CPU.SystemLoad / float64(stats.CPU.Cores)
	}
	if stats.Memory.Allocated > 0 {
		stats.Memory.UsedPercent = 100 * float64(stats.Memory.Used) / float64(stats.Memory.Allocated)
		stats.Memory.FreePercent = 100 * float64(stats.Memory.Free) / float64(stats.Memory.Allocated)
	}
	return stats
}
