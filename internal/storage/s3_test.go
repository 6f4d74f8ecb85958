package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocation(t *testing.T) {
	loc, ok := ParseLocation("s3://media/site/images/")
	assert.True(t, ok)
	assert.Equal(t, Location{Bucket: "media", Prefix: "site/images"}, loc)
	assert.Equal(t, "site/images/cat-123456.jpg", loc.Key("cat-123456.jpg"))

	loc, ok = ParseLocation("s3://media")
	assert.True(t, ok)
	assert.Equal(t, "cat.jpg", loc.Key("cat.jpg"))

	_, ok = ParseLocation("images")
	assert.False(t, ok)
	_, ok = ParseLocation("s3:///prefix")
	assert.False(t, ok)
}
