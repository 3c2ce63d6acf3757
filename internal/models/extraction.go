package models

// BoundingBox locates one recognized token on a page, in pixel coordinates
// with the origin in the upper-left corner.
type BoundingBox struct {
	Text       string
	Confidence float64
	Left       int
	Top        int
	Width      int
	Height     int
}

// ExtractionResult is the outcome of recognizing a single image or page.
// Confidence is the arithmetic mean over the tokens that survived filtering,
// in [0,100]; it is 0.0 when no token survived.
type ExtractionResult struct {
	Text       string
	Confidence float64
	Language   string
	PageNumber int
	Boxes      []BoundingBox
}

// EventKind classifies a filesystem notification.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// WatchEvent is a single filesystem notification, consumed exactly once by
// the dispatcher's callback.
type WatchEvent struct {
	Path        string
	Kind        EventKind
	IsDirectory bool
}
