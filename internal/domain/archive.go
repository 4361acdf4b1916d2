package domain

import "time"

// ArchiveEntry is one listed, publicly starrable generated school.
type ArchiveEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Stars        int64     `json:"stars"`
}
