package story

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Lane identifies which concurrent pipeline a request, result or error belongs to.
type Lane int

const (
	LaneStory Lane = iota
	LaneCaption
	LaneTranslation
)

// Lanes lists every lane in display order.
var Lanes = []Lane{LaneStory, LaneCaption, LaneTranslation}

func (l Lane) String() string {
	switch l {
	case LaneStory:
		return "story"
	case LaneCaption:
		return "caption"
	case LaneTranslation:
		return "translation"
	default:
		return fmt.Sprintf("lane(%d)", int(l))
	}
}

// LanguageCode is a language name as served by the backend, e.g. "English".
type LanguageCode string

func (c LanguageCode) String() string {
	return string(c)
}

// Categories offered for story generation.
var Categories = []string{
	"Adventure",
	"Mystery",
	"Romance",
	"Science Fiction",
	"Fantasy",
	"Horror",
	"Comedy",
	"Drama",
	"Fairy Tale",
	"Historical Fiction",
}

const (
	DefaultCategory  = "Adventure"
	DefaultWordLimit = 200
	MinWordLimit     = 100
	MaxWordLimit     = 500
	WordLimitStep    = 50
)

// ValidateWordLimit checks a word limit against the slider range of the reader.
func ValidateWordLimit(n int) error {
	if n < MinWordLimit || n > MaxWordLimit {
		return fmt.Errorf("word limit must be between %d and %d", MinWordLimit, MaxWordLimit)
	}
	if (n-MinWordLimit)%WordLimitStep != 0 {
		return fmt.Errorf("word limit must be a multiple of %d", WordLimitStep)
	}
	return nil
}

// FindCategory returns the canonical spelling of a category, matching case-insensitively.
func FindCategory(name string) (string, bool) {
	for _, c := range Categories {
		if strings.EqualFold(c, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return "", false
}

// EncodedImage is an image payload plus the intrinsic size read while preprocessing.
type EncodedImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// IsZero reports whether no image is held.
func (img EncodedImage) IsZero() bool {
	return len(img.Data) == 0
}

// DataURL renders the payload as the text form sent to the backend.
func (img EncodedImage) DataURL() string {
	mime := img.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// ParseDataURL decodes a base64 data URL into an EncodedImage. Size is left unset.
func ParseDataURL(s string) (EncodedImage, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return EncodedImage{}, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return EncodedImage{}, fmt.Errorf("data url has no payload")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return EncodedImage{}, fmt.Errorf("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("failed to decode data url: %w", err)
	}
	return EncodedImage{Data: data, MIMEType: mime}, nil
}
