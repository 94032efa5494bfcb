package domain

// MediaType is a coarse stream category used to partition source
// collections and moderation policies.
type MediaType string

const (
	MediaAudio       MediaType = "audio"
	MediaVideo       MediaType = "video"
	MediaApplication MediaType = "application"
)
