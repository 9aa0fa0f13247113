package engine

import "time"

// Config holds configuration for the stream orchestrator.
type Config struct {
	// HistoryLimit is the number of stored messages loaded as model
	// context. Zero or negative means use the default of 20.
	HistoryLimit int

	// PersistTimeout bounds the fire-and-forget persistence of the
	// conversation after a stream completes. Zero or negative means
	// use the default of 10 seconds.
	PersistTimeout time.Duration
}

func (c Config) historyLimit() int {
	if c.HistoryLimit <= 0 {
		return 20
	}
	return c.HistoryLimit
}

func (c Config) persistTimeout() time.Duration {
	if c.PersistTimeout <= 0 {
		return 10 * time.Second
	}
	return c.PersistTimeout
}
