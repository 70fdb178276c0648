package sqlstore

import (
	"fmt"
	"math"
	"time"
)

// timeCol scans TIMESTAMPTZ values and integer unix microseconds alike.
type timeCol struct{ dst *time.Time }

func (c timeCol) Scan(src any) error {
	t, ok, err := parseTime(src)
	if err != nil {
		return err
	}
	if !ok {
		*c.dst = time.Time{}
		return nil
	}
	*c.dst = t
	return nil
}

// nullTimeCol is timeCol for optional columns.
type nullTimeCol struct{ dst **time.Time }

func (c nullTimeCol) Scan(src any) error {
	t, ok, err := parseTime(src)
	if err != nil {
		return err
	}
	if !ok {
		*c.dst = nil
		return nil
	}
	*c.dst = &t
	return nil
}

func parseTime(src any) (time.Time, bool, error) {
	switch v := src.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v.UTC(), true, nil
	case int64:
		return time.UnixMicro(v).UTC(), true, nil
	case string:
		return parseTimeString(v)
	case []byte:
		return parseTimeString(string(v))
	default:
		return time.Time{}, false, fmt.Errorf("sqlstore: cannot scan %T into time", src)
	}
}

func parseTimeString(s string) (time.Time, bool, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlstore: parse time %q: %w", s, err)
	}
	return t.UTC(), true, nil
}

// UnixMicro is a Dialect.TimeArg for backends without a native timestamp.
func UnixMicro(t time.Time) any { return t.UTC().UnixMicro() }

// pageArgs returns the LIMIT/OFFSET clause and its arguments; a zero limit
// means no limit.
func pageArgs(limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return "", nil
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	return " LIMIT ? OFFSET ?", []any{limit, max(offset, 0)}
}
