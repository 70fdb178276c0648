package credits

import "github.com/xraph/credits/id"

// ID is the TypeID-backed identifier of allocations, packages, purchases and
// log entries.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
