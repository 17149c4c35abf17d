package admission

import (
	"testing"
	"time"
)

func TestWindowBucketDailyStableWithinDate(t *testing.T) {
	day := 24 * time.Hour
	morning := time.Date(2026, 5, 1, 0, 0, 1, 0, time.UTC)
	night := time.Date(2026, 5, 1, 23, 59, 59, 0, time.UTC)
	next := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	if WindowBucket(morning, day) != WindowBucket(night, day) {
		t.Fatalf("same date buckets differ: %q vs %q", WindowBucket(morning, day), WindowBucket(night, day))
	}
	if WindowBucket(night, day) == WindowBucket(next, day) {
		t.Fatalf("bucket did not change across date boundary: %q", WindowBucket(next, day))
	}
	if got := WindowBucket(night, day); got != "2026-05-01" {
		t.Fatalf("daily bucket: want=%q got=%q", "2026-05-01", got)
	}
}

func TestWindowBucketGranularity(t *testing.T) {
	now := time.Date(2026, 5, 1, 13, 45, 0, 0, time.UTC)
	cases := []struct {
		window time.Duration
		want   string
	}{
		{48 * time.Hour, "2026-05-01"},
		{time.Hour, "2026-05-01-13"},
		{6 * time.Hour, "2026-05-01-13"},
		{time.Minute, "29627385"},
	}
	for _, tc := range cases {
		if got := WindowBucket(now, tc.window); got != tc.want {
			t.Fatalf("WindowBucket(%s): want=%q got=%q", tc.window, tc.want, got)
		}
	}
}

func TestWindowBucketUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 5, 1, 21, 0, 0, 0, loc)
	if got := WindowBucket(local, 24*time.Hour); got != "2026-05-02" {
		t.Fatalf("want UTC date 2026-05-02, got=%q", got)
	}
}

func TestBucketEnd(t *testing.T) {
	now := time.Date(2026, 5, 1, 13, 45, 10, 0, time.UTC)
	if got := bucketEnd(now, 24*time.Hour); !got.Equal(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("daily end: got=%s", got)
	}
	if got := bucketEnd(now, time.Hour); !got.Equal(time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("hourly end: got=%s", got)
	}
	if got := bucketEnd(now, time.Minute); !got.Equal(time.Date(2026, 5, 1, 13, 46, 0, 0, time.UTC)) {
		t.Fatalf("minute end: got=%s", got)
	}
}

func TestParseIdentifier(t *testing.T) {
	cases := []struct {
		raw     string
		want    Identifier
		wantErr bool
	}{
		{"ip:1.2.3.4", Identifier{Type: "ip", Value: "1.2.3.4"}, false},
		{"ip:::1", Identifier{Type: "ip", Value: "::1"}, false},
		{"IP: 10.0.0.1 ", Identifier{Type: "ip", Value: "10.0.0.1"}, false},
		{"session-42", Identifier{Type: "id", Value: "session-42"}, false},
		{"", Identifier{}, true},
		{"ip:", Identifier{}, true},
	}
	for _, tc := range cases {
		got, err := ParseIdentifier(tc.raw)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseIdentifier(%q) err=%v wantErr=%v", tc.raw, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseIdentifier(%q): want=%+v got=%+v", tc.raw, tc.want, got)
		}
	}
}

func TestWindowKeyShape(t *testing.T) {
	now := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)
	got := windowKey("ratelimit", Identifier{Type: "ip", Value: "1.2.3.4"}, now, 24*time.Hour)
	if got != "ratelimit:ip:1.2.3.4:2026-05-01" {
		t.Fatalf("key: got=%q", got)
	}
}
