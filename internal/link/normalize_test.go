package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := New("https://player.example")

	tests := []struct {
		name    string
		locator string
		want    string
	}{
		{"play with trailing segments", "https://iframe.mediadelivery.net/play/12345/abcde-f/playlist.m3u8", "https://player.example/?lib=12345&id=abcde-f"},
		{"embed", "https://iframe.mediadelivery.net/embed/987/vid-1", "https://player.example/?lib=987&id=vid-1"},
		{"surrounding whitespace", "  https://iframe.mediadelivery.net/play/1/2  ", "https://player.example/?lib=1&id=2"},
		{"keyword without host marker", "https://iframe.cdn.example/play/7/8", "https://player.example/?lib=7&id=8"},
		{"host marker without keyword", "https://video.mediadelivery.net/play/5/6/extra/more", "https://player.example/?lib=5&id=6"},
		{"double slashes collapse", "https://iframe.mediadelivery.net//play//3//4", "https://player.example/?lib=3&id=4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.locator)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	n := New("https://player.example/")

	tests := []struct {
		name    string
		locator string
		want    error
	}{
		{"not a url", "hello there", ErrMalformedURL},
		{"bad escape", "https://iframe.mediadelivery.net/%zz", ErrMalformedURL},
		{"unknown host", "https://youtube.com/play/1/2", ErrUnrecognizedSource},
		{"too few segments", "https://iframe.mediadelivery.net/play/1", ErrInvalidPathShape},
		{"wrong route", "https://iframe.mediadelivery.net/watch/1/2", ErrInvalidPathShape},
		{"no path", "https://iframe.mediadelivery.net", ErrInvalidPathShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.locator)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalizeTrimsPlayerBase(t *testing.T) {
	got, err := New("https://player.example/").Normalize("https://iframe.mediadelivery.net/play/1/2")
	require.NoError(t, err)
	assert.Equal(t, "https://player.example/?lib=1&id=2", got)
}

func TestNormalizeDeterministic(t *testing.T) {
	n := New("https://player.example")
	const locator = "https://iframe.mediadelivery.net/embed/lib/abc"
	first, err := n.Normalize(locator)
	require.NoError(t, err)
	second, err := n.Normalize(locator)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(ErrUnrecognizedSource), "mediadelivery.net")
	assert.Contains(t, UserMessage(ErrInvalidPathShape), "/play/")
	assert.NotEmpty(t, UserMessage(nil))
}
