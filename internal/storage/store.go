package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"strings"
)

// ObjectStore persists generated media and returns a publicly reachable URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ContentKey builds a content-addressed key "{prefix}/{sha256}.{ext}" so the
// same payload always lands on the same object.
func ContentKey(prefix, contentType string, data []byte) string {
	sum := sha256.Sum256(data)
	key := strings.Trim(prefix, "/") + "/" + hex.EncodeToString(sum[:])
	if ext := ExtensionFor(contentType); ext != "" {
		key += ext
	}
	return key
}

var preferredExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"audio/mpeg": ".mp3",
	"audio/mp3":  ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
}

// ExtensionFor returns the file extension, with dot, for a MIME type.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := preferredExt[mediaType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
