// Package storage parks synthesized audio so that a synthesis response can
// carry a URL instead of the audio itself.
package storage

import (
	"context"
	"errors"
)

// AudioPath is the route prefix the memory store's objects are served under.
const AudioPath = "/api/tts/audio/"

// ErrNotFound is returned for unknown or expired objects.
var ErrNotFound = errors.New("audio object not found")

// Store saves an audio clip and returns a URL it can be fetched from. The URL
// is either absolute or a path relative to the server that stored it.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// Object is a stored clip.
type Object struct {
	Data        []byte
	ContentType string
}

// Reader looks up a clip stored under a relative URL by its id.
type Reader interface {
	Get(id string) (Object, error)
}
