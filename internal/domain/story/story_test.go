package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneString(t *testing.T) {
	assert.Equal(t, "story", LaneStory.String())
	assert.Equal(t, "caption", LaneCaption.String())
	assert.Equal(t, "translation", LaneTranslation.String())
	assert.Equal(t, "lane(7)", Lane(7).String())
}

func TestValidateWordLimit(t *testing.T) {
	assert.NoError(t, ValidateWordLimit(100))
	assert.NoError(t, ValidateWordLimit(200))
	assert.NoError(t, ValidateWordLimit(500))
	assert.Error(t, ValidateWordLimit(50))
	assert.Error(t, ValidateWordLimit(550))
	assert.Error(t, ValidateWordLimit(225))
}

func TestFindCategory(t *testing.T) {
	c, ok := FindCategory("science fiction")
	require.True(t, ok)
	assert.Equal(t, "Science Fiction", c)

	_, ok = FindCategory("cookbook")
	assert.False(t, ok)
}

func TestDataURLRoundTrip(t *testing.T) {
	img := EncodedImage{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}
	url := img.DataURL()
	assert.Equal(t, "data:image/jpeg;base64,/9j/", url)

	got, err := ParseDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, img.Data, got.Data)
	assert.Equal(t, "image/jpeg", got.MIMEType)
}

func TestParseDataURLRejectsGarbage(t *testing.T) {
	_, err := ParseDataURL("hello")
	assert.Error(t, err)
	_, err = ParseDataURL("data:image/png,abc")
	assert.Error(t, err)
}

func TestServiceErrorMessage(t *testing.T) {
	var err error = &ServiceError{Message: "quota exceeded"}
	assert.Equal(t, "quota exceeded", err.Error())
}
