package sqlstore

import (
	"strconv"
	"strings"
	"time"
)

// Dialect captures what differs between the SQL backends.
type Dialect struct {
	// Name prefixes error messages, e.g. "postgres".
	Name string
	// Numbered rewrites ? placeholders to $1, $2, ...
	Numbered bool
	// LockSuffix is appended to the account row select inside a unit.
	LockSuffix string

	// Column types substituted into the schema.
	DecimalType string
	TimeType    string
	BoolType    string

	// TimeArg converts a timestamp to the value stored in a TimeType column.
	TimeArg func(time.Time) any
	// Translate maps driver errors onto the errs sentinels. It returns err
	// unchanged when it has nothing to add.
	Translate func(err error) error
}

func (d *Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *Dialect) ts(t time.Time) any {
	if d.TimeArg == nil {
		return t.UTC()
	}
	return d.TimeArg(t)
}

func (d *Dialect) nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.ts(*t)
}

func (d *Dialect) translate(err error) error {
	if err == nil || d.Translate == nil {
		return err
	}
	return d.Translate(err)
}
