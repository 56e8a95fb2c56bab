package models

import "time"

// LoadRecord is one overlay load a session asked the fetcher for.
type LoadRecord struct {
	Tag         string      `json:"tag"`
	Viewport    Viewport    `json:"viewport"`
	BoundingBox BoundingBox `json:"bounding_box"`
	RequestedAt time.Time   `json:"requested_at"`
}
