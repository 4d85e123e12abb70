// Package journal keeps the last frame published on every topic in a local
// SQLite database so that it survives restarts.
package journal

import "codeberg.org/odysseus/odytelem/internal/wire"

// Journal records published frames.
type Journal interface {
	// Record notes that payload, the encoding of frame, was published on
	// topic.
	Record(topic string, frame wire.Frame, payload []byte) error
	// Flush writes buffered records out.
	Flush() error
	// Entries returns the stored record of every topic, ordered by topic.
	Entries() ([]Entry, error)
	Close() error
}

// Entry is the last publication seen on a topic.
type Entry struct {
	Topic   string
	Unit    string
	Value   float32
	Payload []byte
	TimeUS  uint64
	// Count is the number of publishes on the topic since the journal was
	// created.
	Count int64
}
