package broker

import (
	"context"
	"time"
)

// EventType names a circulation change visible on the catalogue.
type EventType string

const (
	EventBorrowed    EventType = "book_borrowed"
	EventReturned    EventType = "book_returned"
	EventBookAdded   EventType = "book_added"
	EventBookUpdated EventType = "book_updated"
	EventBookDeleted EventType = "book_deleted"
)

// Event is what connected catalogue clients receive. Available is the book's
// derived availability right after the change. Events go to every client, so
// they never name the borrower; the journal keeps the actor.
type Event struct {
	Type      EventType `json:"type"`
	BookID    uint      `json:"book_id"`
	BorrowID  uint      `json:"borrow_id,omitempty"`
	Available bool      `json:"available"`
	At        time.Time `json:"at"`
}

// Broker fans circulation events out to subscribers, possibly across server
// instances.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel that is closed when ctx is done or the
	// broker is closed.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}
