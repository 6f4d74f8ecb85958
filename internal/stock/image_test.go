package stock

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickWalksSizeLadder(t *testing.T) {
	urls := DownloadURLs{Large: "https://x/l.jpg", Original: "https://x/o.jpg"}
	assert.Equal(t, "https://x/l.jpg", urls.Pick(SizeSmall))
	assert.Equal(t, "https://x/l.jpg", urls.Pick(SizeMedium))
	assert.Equal(t, "https://x/l.jpg", urls.Pick(SizeLarge))
	assert.Equal(t, "https://x/o.jpg", urls.Pick(SizeOriginal))
	assert.Equal(t, "https://x/l.jpg", urls.Pick("bogus"), "unknown size behaves like medium")
}

func TestFilledLeavesNoTierEmpty(t *testing.T) {
	filled := DownloadURLs{Small: "https://x/s.jpg"}.Filled()
	assert.Equal(t, DownloadURLs{
		Small:    "https://x/s.jpg",
		Medium:   "https://x/s.jpg",
		Large:    "https://x/s.jpg",
		Original: "https://x/s.jpg",
	}, filled)

	assert.True(t, DownloadURLs{}.Filled().Empty())
	assert.False(t, Image{DownloadUrls: DownloadURLs{}}.Usable())
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("pexels")
	require.NoError(t, err)
	assert.Equal(t, Pexels, p)

	_, err = ParseProvider("flickr")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProvider))
	assert.Equal(t, "Unknown provider: flickr", err.Error())
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("search: %w", &Error{
		Kind:     ErrProvider,
		Provider: Pixabay,
		Message:  "Failed to search Pixabay: connection refused",
		Err:      cause,
	})
	assert.True(t, errors.Is(err, ErrProvider))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "Failed to search Pixabay: connection refused", Message(err))
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}
