// Package notify announces migration outcomes to downstream consumers such as
// the site build pipeline.
package notify

import (
	"context"
	"time"
)

// Event is the payload published after each migration attempt.
type Event struct {
	RunID     string    `json:"run_id"`
	SourceURL string    `json:"source_url"`
	File      string    `json:"file,omitempty"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status"`
	Result    string    `json:"result"`
	Errors    []string  `json:"errors,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events. Implementations must be safe for sequential use
// from a single migration run.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
	Close() error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) (string, error) { return "", nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
