package types

import "time"

// Entity is the base type for all stored credits records.
// Embed it in domain types; the ledger's write path stamps it through Stamp.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stamp sets CreatedAt on first write and UpdatedAt on every write.
func (e *Entity) Stamp(now time.Time) {
	now = now.UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

// Stamper is implemented by every stored record and log entry.
type Stamper interface {
	Stamp(now time.Time)
}

// Clock abstracts time so expiry logic can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
