package chunkuploader

import (
	"time"
)

// Config holds configuration for the part uploader.
type Config struct {
	// BusyPause is the pause before a part rejected as busy is sent again with a new slot.
	// Default: 200 milliseconds
	BusyPause time.Duration

	// StreamChunkSize is the size of the chunks a part body is streamed in. Every chunk
	// passes the rate limiter and is credited to progress when it is read.
	// Default: 160 KiB
	StreamChunkSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BusyPause:       200 * time.Millisecond,
		StreamChunkSize: 160 * 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BusyPause < 0 {
		c.BusyPause = 0
	}
	if c.StreamChunkSize <= 0 {
		c.StreamChunkSize = d.StreamChunkSize
	}
	return c
}
