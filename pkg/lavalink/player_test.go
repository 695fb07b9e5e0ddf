package lavalink

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackEnd(t *testing.T, reason string) func(p *Player) {
	return func(p *Player) {
		p.handleFrame("event", frame(t, fmt.Sprintf(`{"op":"event","type":"TrackEndEvent","reason":%q}`, reason)))
	}
}

func TestPlayerPlayEmptyQueueIsNoop(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	require.NoError(t, p.Play())
	assert.False(t, p.Playing())
	assert.Nil(t, p.Current())
}

func TestPlayerPlayRequiresVoiceLink(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.Queue().Add(track("a"))
	assert.ErrorIs(t, p.Play(), ErrPlayerNotConnected)
}

func TestPlayerPlaybackAdvance(t *testing.T) {
	p, e, _, m := newTestPlayer(t, "g1")

	var mu sync.Mutex
	queueEnded := 0
	m.OnQueueEnd(func(*Player) {
		mu.Lock()
		queueEnded++
		mu.Unlock()
	})

	p.Queue().Add(track("a"))
	p.Queue().Add(track("b"))
	require.NoError(t, p.Play())

	require.NotNil(t, p.Current())
	assert.Equal(t, "a", p.Current().Info.Title)
	assert.True(t, p.Playing())

	// the engine finishing a advances to b and records a in history
	trackEnd(t, "finished")(p)
	require.NotNil(t, p.Current())
	assert.Equal(t, "b", p.Current().Info.Title)
	require.Len(t, p.Queue().History(), 1)
	assert.Equal(t, "a", p.Queue().History()[0].Info.Title)

	// finishing b exhausts the queue
	trackEnd(t, "finished")(p)
	assert.Nil(t, p.Current())
	assert.False(t, p.Playing())
	assert.False(t, p.Paused())

	mu.Lock()
	assert.Equal(t, 1, queueEnded)
	mu.Unlock()

	// every started track went out as a patch
	waitFor(t, time.Second, "play patches", func() bool {
		return len(e.requestsMatching("PATCH", "/v4/sessions/sess-1/players/g1")) >= 2
	})
}

func TestPlayerLoopTrack(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")
	require.NoError(t, p.SetLoop(LoopTrack))

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())

	trackEnd(t, "finished")(p)
	require.NotNil(t, p.Current())
	assert.Equal(t, "a", p.Current().Info.Title)
	assert.True(t, p.Playing())
	assert.Empty(t, p.Queue().History())
}

func TestPlayerLoopQueue(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")
	require.NoError(t, p.SetLoop(LoopQueue))

	p.Queue().Add(track("a"))
	p.Queue().Add(track("b"))
	require.NoError(t, p.Play())

	trackEnd(t, "finished")(p)
	assert.Equal(t, "b", p.Current().Info.Title)
	// a went to the back of the rotation, not to history
	require.Equal(t, 1, p.Queue().Len())
	assert.Equal(t, "a", p.Queue().Peek().Info.Title)
	assert.Empty(t, p.Queue().History())
}

func TestPlayerLoadFailedDropsTrack(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")
	require.NoError(t, p.SetLoop(LoopTrack))

	p.Queue().Add(track("broken"))
	p.Queue().Add(track("b"))
	require.NoError(t, p.Play())

	// loadFailed bypasses the loop policy entirely: the track is gone
	trackEnd(t, "loadFailed")(p)
	assert.Equal(t, "b", p.Current().Info.Title)
	assert.Empty(t, p.Queue().History())
	assert.Zero(t, p.Queue().Len())
}

func TestPlayerReplacedKeepsNewTrack(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())
	p.Queue().Add(track("b"))
	require.NoError(t, p.Play())
	assert.Equal(t, "b", p.Current().Info.Title)

	// the end event for the superseded track must not disturb the new one
	trackEnd(t, "replaced")(p)
	require.NotNil(t, p.Current())
	assert.Equal(t, "b", p.Current().Info.Title)
	assert.True(t, p.Playing())
}

func TestPlayerSkipAdvancesViaStopEvent(t *testing.T) {
	p, e, _, _ := newTestPlayer(t, "g1")

	p.Queue().Add(track("a"))
	p.Queue().Add(track("b"))
	require.NoError(t, p.Play())
	require.NoError(t, p.Skip())

	// skip only clears; the engine's end event for the stopped track drives
	// the advance
	trackEnd(t, "stopped")(p)
	require.NotNil(t, p.Current())
	assert.Equal(t, "b", p.Current().Info.Title)

	waitFor(t, time.Second, "clear patch", func() bool {
		for _, r := range e.requestsMatching("PATCH", "/v4/sessions/sess-1/players/g1") {
			if r.Body == `{"encodedTrack":null}` {
				return true
			}
		}
		return false
	})
}

func TestPlayerPauseResume(t *testing.T) {
	p, e, _, _ := newTestPlayer(t, "g1")

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())

	require.NoError(t, p.Pause(true))
	assert.True(t, p.Paused())
	require.NoError(t, p.Pause(false))
	assert.False(t, p.Paused())

	waitFor(t, time.Second, "pause patches", func() bool {
		var paused, resumed bool
		for _, r := range e.requestsMatching("PATCH", "/v4/sessions/sess-1/players/g1") {
			if r.Body == `{"paused":true}` {
				paused = true
			}
			if r.Body == `{"paused":false}` {
				resumed = true
			}
		}
		return paused && resumed
	})
}

func TestPlayerSeek(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	assert.ErrorIs(t, p.Seek(-time.Second), ErrNegativePosition)

	// seeking while idle is a no-op
	require.NoError(t, p.Seek(10*time.Second))
	assert.Zero(t, p.Position())

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())
	require.NoError(t, p.Seek(42*time.Second))
	assert.Equal(t, 42*time.Second, p.Position())
}

func TestPlayerVolumeBounds(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	assert.Equal(t, 100, p.Volume())
	assert.ErrorIs(t, p.SetVolume(-1), ErrVolumeOutOfRange)
	assert.ErrorIs(t, p.SetVolume(201), ErrVolumeOutOfRange)
	require.NoError(t, p.SetVolume(200))
	assert.Equal(t, 200, p.Volume())
}

func TestPlayerSetLoopRejectsUnknownMode(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	assert.ErrorIs(t, p.SetLoop(LoopMode(42)), ErrInvalidLoopMode)
	require.NoError(t, p.SetLoop(LoopQueue))
	assert.Equal(t, LoopQueue, p.Loop())
}

func TestPlayerExceptionStopsPlayback(t *testing.T) {
	p, _, _, m := newTestPlayer(t, "g1")

	var mu sync.Mutex
	var errs []error
	m.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())

	p.handleFrame("event", frame(t, `{"op":"event","type":"TrackExceptionEvent","exception":{"message":"decoder blew up"}}`))

	assert.False(t, p.Playing())
	assert.Nil(t, p.Current())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "decoder blew up")
}

func TestPlayerStuckStopsPlayback(t *testing.T) {
	p, _, _, m := newTestPlayer(t, "g1")

	var mu sync.Mutex
	errCount := 0
	m.OnError(func(error) {
		mu.Lock()
		errCount++
		mu.Unlock()
	})

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())

	p.handleFrame("event", frame(t, `{"op":"event","type":"TrackStuckEvent","thresholdMs":5000}`))

	assert.False(t, p.Playing())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, errCount)
}

func TestPlayerSocketClosedRehandshake(t *testing.T) {
	p, _, gw, _ := newTestPlayer(t, "g1")

	require.NoError(t, p.Connect("chan-1", true, false))
	p.HandleVoiceServerUpdate("rotterdam10233.discord.media:443", "tkn")
	p.HandleVoiceStateUpdate("chan-1", "vsess", true, false)
	before := len(gw.callsFor("g1"))

	p.handleFrame("event", frame(t, `{"op":"event","type":"WebSocketClosedEvent","code":4006,"reason":"session invalid"}`))

	waitFor(t, time.Second, "re-handshake", func() bool {
		return len(gw.callsFor("g1")) == before+1
	})
	last := gw.callsFor("g1")[before]
	assert.Equal(t, "chan-1", last.ChannelID)
	assert.True(t, p.Paused())
}

func TestPlayerSocketClosedOtherCodesOnlyPause(t *testing.T) {
	p, _, gw, _ := newTestPlayer(t, "g1")

	require.NoError(t, p.Connect("chan-1", true, false))
	before := len(gw.callsFor("g1"))

	p.handleFrame("event", frame(t, `{"op":"event","type":"WebSocketClosedEvent","code":1000,"reason":"bye"}`))

	assert.True(t, p.Paused())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, gw.callsFor("g1"), before)
}

func TestPlayerTrackChangeMarksPlaying(t *testing.T) {
	p, _, _, m := newTestPlayer(t, "g1")

	var mu sync.Mutex
	errCount := 0
	m.OnError(func(error) {
		mu.Lock()
		errCount++
		mu.Unlock()
	})

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())
	require.NoError(t, p.Pause(true))

	// a changed track behaves exactly like a started one
	p.handleFrame("event", frame(t, `{"op":"event","type":"TrackChangeEvent"}`))

	assert.True(t, p.Playing())
	assert.False(t, p.Paused())
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, errCount)
}

func TestPlayerHooksMayReadPlayerState(t *testing.T) {
	p, _, _, m := newTestPlayer(t, "g1")

	type snapshot struct {
		playing bool
		pending int
	}
	done := make(chan snapshot, 1)
	m.OnQueueEnd(func(pl *Player) {
		done <- snapshot{playing: pl.Playing(), pending: pl.Queue().Len()}
	})

	errDone := make(chan bool, 1)
	m.OnError(func(error) {
		errDone <- p.Playing()
	})

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())
	trackEnd(t, "finished")(p)

	select {
	case got := <-done:
		assert.False(t, got.playing)
		assert.Zero(t, got.pending)
	case <-time.After(2 * time.Second):
		t.Fatal("queueEnd hook never returned")
	}

	// the error path holds the same guarantee
	p.Queue().Add(track("b"))
	require.NoError(t, p.Play())
	p.handleFrame("event", frame(t, `{"op":"event","type":"TrackStuckEvent","thresholdMs":5000}`))

	select {
	case playing := <-errDone:
		assert.False(t, playing)
	case <-time.After(2 * time.Second):
		t.Fatal("error hook never returned")
	}
}

func TestPlayerUpdateFramePosition(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	p.handleFrame("playerUpdate", frame(t, `{"op":"playerUpdate","state":{"position":12500,"connected":true}}`))
	assert.Equal(t, 12500*time.Millisecond, p.Position())
}

func TestPlayerUnhandledEventSurfacesError(t *testing.T) {
	p, _, _, m := newTestPlayer(t, "g1")

	var mu sync.Mutex
	var errs []error
	m.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	p.handleFrame("event", frame(t, `{"op":"event","type":"SegmentSkippedEvent"}`))
	p.handleFrame("somethingNew", frame(t, `{"op":"somethingNew"}`))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "SegmentSkippedEvent")
	assert.Contains(t, errs[1].Error(), "somethingNew")
}

func TestPlayerNowPlayingCleanup(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	cleanups := 0
	p.SetNowPlayingCleanup(func() error {
		cleanups++
		return nil
	})

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())

	trackEnd(t, "finished")(p)
	assert.Equal(t, 1, cleanups)

	// one-shot: the next end must not run it again
	trackEnd(t, "finished")(p)
	assert.Equal(t, 1, cleanups)
}

func TestPlayerStore(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, "g1")

	p.Set("text_channel", "123")
	v, ok := p.Get("text_channel")
	require.True(t, ok)
	assert.Equal(t, "123", v)

	p.Delete("text_channel")
	_, ok = p.Get("text_channel")
	assert.False(t, ok)
}

func TestPlayerDestroyIsIdempotent(t *testing.T) {
	p, e, gw, _ := newTestPlayer(t, "g1")

	p.Queue().Add(track("a"))
	require.NoError(t, p.Play())

	p.destroy()
	p.destroy()

	assert.False(t, p.Playing())
	assert.Zero(t, p.Queue().Len())
	assert.ErrorIs(t, p.Play(), ErrPlayerDestroyed)
	assert.ErrorIs(t, p.Pause(true), ErrPlayerDestroyed)
	assert.ErrorIs(t, p.SetVolume(50), ErrPlayerDestroyed)
	assert.ErrorIs(t, p.Connect("c", false, false), ErrPlayerDestroyed)

	// engine destroy and voice disconnect each fired exactly once
	assert.Len(t, e.requestsMatching("DELETE", "/v4/sessions/sess-1/players/g1"), 1)
	disconnects := 0
	for _, c := range gw.callsFor("g1") {
		if c.ChannelID == "" {
			disconnects++
		}
	}
	assert.Equal(t, 1, disconnects)
}
