package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			"watch url collapses to video id",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			"dQw4w9WgXcQ",
		},
		{
			"short url collapses to video id",
			"https://youtu.be/dQw4w9WgXcQ",
			"dQw4w9WgXcQ",
		},
		{
			"bare video id passes through",
			"dQw4w9WgXcQ",
			"dQw4w9WgXcQ",
		},
		{
			"non-youtube url passes through",
			"https://example.org/stream.mp3",
			"https://example.org/stream.mp3",
		},
		{
			"plain text becomes a search",
			"never gonna give you up",
			"ytsearch:never gonna give you up",
		},
		{
			"surrounding whitespace is trimmed",
			"  some song  ",
			"ytsearch:some song",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.query))
		})
	}
}
