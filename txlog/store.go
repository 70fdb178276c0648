package txlog

import "context"

// Store is append-only.
type Store interface {
	AppendEntries(ctx context.Context, entries []*Entry) error
}

// Lister returns entries ordered by CreatedAt then ID.
type Lister interface {
	ListEntries(ctx context.Context, q Query) ([]*Entry, error)
}
