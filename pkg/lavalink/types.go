package lavalink

import (
	"context"
	"errors"
	"time"
)

// NodeState represents the connection state of a remote node
type NodeState int

const (
	StateDisconnected NodeState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s NodeState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// LoopMode represents what happens to a track once it finishes
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopTrack
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopNone:
		return "none"
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseLoopMode parses a user-supplied loop mode name
func ParseLoopMode(s string) (LoopMode, error) {
	switch s {
	case "none", "off":
		return LoopNone, nil
	case "track", "song":
		return LoopTrack, nil
	case "queue", "all":
		return LoopQueue, nil
	default:
		return LoopNone, ErrInvalidLoopMode
	}
}

// Track is an engine-issued playback token plus display metadata. The core
// treats it as an immutable value; only the Encoded token matters for playback.
type Track struct {
	Encoded string
	Info    TrackInfo
}

// TrackInfo carries the display metadata attached to a track
type TrackInfo struct {
	Identifier string
	Author     string
	Title      string
	Length     time.Duration
	URI        string
}

// CPUStats is the CPU section of a node stats frame
type CPUStats struct {
	Cores        int
	SystemLoad   float64
	LavalinkLoad float64
	// LoadPercent is 100*SystemLoad/Cores, zero when Cores is zero
	LoadPercent float64
}

// MemoryStats is the memory section of a node stats frame
type MemoryStats struct {
	Free        int64
	Used        int64
	Allocated   int64
	Reservable  int64
	FreePercent float64
	UsedPercent float64
}

// FrameStats counts audio frames the engine sent, missed or nulled over the
// last stats window
type FrameStats struct {
	Sent    int
	Deficit int
	Nulled  int
}

// NodeStats is the last health snapshot pushed by (or fetched from) a node
type NodeStats struct {
	Players        int
	PlayingPlayers int
	Uptime         time.Duration
	CPU            CPUStats
	Memory         MemoryStats
	Frames         FrameStats
	Ping           time.Duration
}

// NodeInfo is the engine capability document fetched after a connect
type NodeInfo struct {
	Version        string
	SourceManagers []string
	Filters        []string
}

// TrackResolver turns an identifier without a playable token into a full
// track, typically via the bound node's track loading endpoint.
type TrackResolver interface {
	Resolve(ctx context.Context, node *Node, identifier string) (*Track, error)
}

// VoiceGateway sends the single outbound voice command this package produces:
// a "set voice state" op on the Discord gateway. An empty channel id requests
// a disconnect.
type VoiceGateway interface {
	SendVoiceState(guildID, channelID string, selfDeaf, selfMute bool) error
}

// Errors surfaced synchronously to callers. Transport and protocol failures
// are never thrown back into caller code; those arrive on the error listener.
var (
	ErrNodeConfigInvalid  = errors.New("lavalink: node config missing name, host, port or password")
	ErrNoNodesAvailable   = errors.New("lavalink: no nodes available")
	ErrInvalidLoopMode    = errors.New("lavalink: loop mode must be none, track or queue")
	ErrVolumeOutOfRange   = errors.New("lavalink: volume must be between 0 and 200")
	ErrNegativePosition   = errors.New("lavalink: seek position must not be negative")
	ErrConflictingPatch   = errors.New("lavalink: player patch cannot carry both an encoded track and an identifier")
	ErrPlayerNotConnected = errors.New("lavalink: player has no established voice link")
	ErrPlayerDestroyed    = errors.New("lavalink: player is destroyed")
)

// Close codes the Discord voice server uses for a recoverable session
// invalidation. A socket close with one of these triggers a fresh voice
// handshake instead of giving up.
const (
	voiceCloseSessionInvalid = 4006
	voiceCloseSessionTimeout = 4009
)
