// Package resolver turns user-supplied queries into playable tracks by way
// of the bound node's track loading endpoint. YouTube URLs are normalized to
// bare video ids first; anything that is not a URL becomes a search query.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/latoulicious/Yotei/pkg/lavalink"
)

// searchPrefix asks the engine to run a search instead of a direct load
const searchPrefix = "ytsearch:"

// videoIDPattern matches a bare 11-character YouTube video id
var videoIDPattern = regexp.MustCompile(`^[\w-]{11}$`)

// YouTubeResolver implements lavalink.TrackResolver
type YouTubeResolver struct{}

// New creates a resolver
func New() *YouTubeResolver {
	return &YouTubeResolver{}
}

// Normalize maps a raw query onto the identifier handed to the engine:
// YouTube URLs collapse to their video id, other URLs pass through, and
// plain text becomes a search query.
func Normalize(query string) string {
	query = strings.TrimSpace(query)

	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") {
		// ExtractVideoID is permissive about plain text, so only consult it
		// for actual YouTube URLs.
		if strings.Contains(query, "youtube.com") || strings.Contains(query, "youtu.be") {
			if id, err := youtube.ExtractVideoID(query); err == nil {
				return id
			}
		}
		return query
	}
	if videoIDPattern.MatchString(query) {
		return query
	}
	return searchPrefix + query
}

// Resolve loads the best match for identifier via the given node
func (r *YouTubeResolver) Resolve(ctx context.Context, node *lavalink.Node, identifier string) (*lavalink.Track, error) {
	tracks, err := node.Rest().LoadTracks(ctx, Normalize(identifier))
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no tracks found for %q", identifier)
	}
	return tracks[0], nil
}

// ResolveAll loads every match for identifier, e.g. a whole playlist
func (r *YouTubeResolver) ResolveAll(ctx context.Context, node *lavalink.Node, identifier string) ([]*lavalink.Track, error) {
	tracks, err := node.Rest().LoadTracks(ctx, Normalize(identifier))
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no tracks found for %q", identifier)
	}
	return tracks, nil
}
