package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ImageType selects the aspect ratio policy for a generated image.
type ImageType string

const (
	ImageTypePortrait  ImageType = "portrait"
	ImageTypeEmblem    ImageType = "emblem"
	ImageTypeLandscape ImageType = "landscape"
	ImageTypeFullBody  ImageType = "fullbody"
)

// ImageSpec is the size policy of an ImageType.
type ImageSpec struct {
	AspectRatio string
	Width       int
	Height      int
}

var imageSpecs = map[ImageType]ImageSpec{
	ImageTypePortrait:  {AspectRatio: "1:1", Width: 1024, Height: 1024},
	ImageTypeEmblem:    {AspectRatio: "1:1", Width: 1024, Height: 1024},
	ImageTypeLandscape: {AspectRatio: "16:9", Width: 1664, Height: 928},
	ImageTypeFullBody:  {AspectRatio: "9:16", Width: 928, Height: 1664},
}

// ParseImageType maps free-form input to a known type, defaulting to landscape.
func ParseImageType(s string) ImageType {
	switch ImageType(strings.ToLower(strings.TrimSpace(s))) {
	case ImageTypePortrait:
		return ImageTypePortrait
	case ImageTypeEmblem:
		return ImageTypeEmblem
	case ImageTypeFullBody, "full-body", "tall":
		return ImageTypeFullBody
	default:
		return ImageTypeLandscape
	}
}

// Spec returns the size policy for t.
func (t ImageType) Spec() ImageSpec {
	if spec, ok := imageSpecs[t]; ok {
		return spec
	}
	return imageSpecs[ImageTypeLandscape]
}

const (
	placeholderImageHost = "placehold.co"
	placeholderScheme    = "placeholder"
)

// PlaceholderImageURL returns the stand-in URL for an image of type t.
func PlaceholderImageURL(t ImageType) string {
	spec := t.Spec()
	return fmt.Sprintf("https://%s/%dx%d/png?text=%s", placeholderImageHost, spec.Width, spec.Height, url.QueryEscape(string(t)))
}

// PlaceholderAudioURL returns the stand-in URL for an audio asset.
func PlaceholderAudioURL(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "anthem"
	}
	return placeholderScheme + "://audio/" + url.PathEscape(label)
}

// IsPlaceholder reports whether u is unset or one of the stand-in URLs.
func IsPlaceholder(u string) bool {
	u = strings.TrimSpace(u)
	if u == "" {
		return true
	}
	if strings.HasPrefix(u, placeholderScheme+"://") {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return true
	}
	return strings.EqualFold(parsed.Host, placeholderImageHost)
}
