package admission

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Identifier names the client a quota is charged to, e.g. ip:1.2.3.4.
type Identifier struct {
	Type  string
	Value string
}

func (id Identifier) String() string {
	return id.Type + ":" + id.Value
}

// ParseIdentifier splits on the first ':' so IPv6 values survive intact.
// A bare value is typed "id".
func ParseIdentifier(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, fmt.Errorf("identifier required")
	}
	typ, val, ok := strings.Cut(raw, ":")
	if !ok {
		return Identifier{Type: "id", Value: raw}, nil
	}
	typ = strings.ToLower(strings.TrimSpace(typ))
	val = strings.TrimSpace(val)
	if typ == "" || val == "" {
		return Identifier{}, fmt.Errorf("malformed identifier %q", raw)
	}
	return Identifier{Type: typ, Value: val}, nil
}

// WindowBucket is the time-bucket component of a rate window key: the UTC
// calendar date for windows of a day or more, date-hour for windows of an
// hour or more, else floor(now/window).
func WindowBucket(now time.Time, window time.Duration) string {
	now = now.UTC()
	switch {
	case window >= 24*time.Hour:
		return now.Format("2006-01-02")
	case window >= time.Hour:
		return now.Format("2006-01-02-15")
	default:
		return strconv.FormatInt(now.UnixMilli()/window.Milliseconds(), 10)
	}
}

// bucketEnd is the instant the key produced by WindowBucket rolls over.
func bucketEnd(now time.Time, window time.Duration) time.Time {
	now = now.UTC()
	switch {
	case window >= 24*time.Hour:
		y, m, d := now.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	case window >= time.Hour:
		return now.Truncate(time.Hour).Add(time.Hour)
	default:
		ms := window.Milliseconds()
		idx := now.UnixMilli() / ms
		return time.UnixMilli((idx + 1) * ms).UTC()
	}
}

func windowKey(prefix string, id Identifier, now time.Time, window time.Duration) string {
	k := id.Type + ":" + id.Value + ":" + WindowBucket(now, window)
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
