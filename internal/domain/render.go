package domain

import "time"

// Render is the durable output of a succeeded job. A job produces at most
// one render, created atomically with all of its variants.
type Render struct {
	ID           string
	JobID        string
	OwnerID      string
	Mode         JobMode
	RoomType     string
	Style        string
	CoverVariant int
	CreatedAt    time.Time
}

// RenderVariant is one of the output images of a render. Idx values are
// contiguous starting at 0, one per URL the provider returned.
type RenderVariant struct {
	ID        string
	RenderID  string
	OwnerID   string
	Idx       int
	ImagePath string
	ThumbPath string
	CreatedAt time.Time
}
