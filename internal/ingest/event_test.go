package ingest

import (
	"testing"
	"time"

	"engagement/internal/model"
)

func TestParseEventUnixSeconds(t *testing.T) {
	ev, err := ParseEventBytes([]byte(`{"type":"login","course":7,"user":42,"time":1706745600}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != model.EventLogin || ev.CourseID != 7 || ev.UserID != 42 {
		t.Fatalf("parsed %+v", ev)
	}
	want := time.Unix(1706745600, 0).UTC()
	if !ev.Time.Equal(want) {
		t.Fatalf("time = %v, want %v", ev.Time, want)
	}
}

func TestParseEventRFC3339AndAliases(t *testing.T) {
	ev, err := ParseEventBytes([]byte(
		`{"event":"forum_post","course_id":"7","userid":42,"discussion":9,"parent_id":3,"timestamp":"2024-02-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != model.EventForumPost {
		t.Fatalf("type = %q", ev.Type)
	}
	if ev.CourseID != 7 || ev.UserID != 42 || ev.ObjectID != 9 || ev.ParentID != 3 {
		t.Fatalf("parsed %+v", ev)
	}
	if ev.Time.Hour() != 10 {
		t.Fatalf("time = %v", ev.Time)
	}
}

func TestParseEventRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown type", `{"type":"page_view","course":1,"user":2,"time":1706745600}`},
		{"missing type", `{"course":1,"user":2,"time":1706745600}`},
		{"missing user", `{"type":"login","course":1,"time":1706745600}`},
		{"missing timestamp", `{"type":"login","course":1,"user":2}`},
		{"bad timestamp", `{"type":"login","course":1,"user":2,"time":"yesterday"}`},
		{"view without discussion", `{"type":"discussion_view","course":1,"user":2,"time":1706745600}`},
	}
	for _, tc := range cases {
		if _, err := ParseEventBytes([]byte(tc.body)); err == nil {
			t.Fatalf("%s: accepted %s", tc.name, tc.body)
		}
	}
}

func TestParseEventLoginNeedsNoObject(t *testing.T) {
	if _, err := ParseEventBytes([]byte(`{"type":"login","course":1,"user":2,"ts":1706745600}`)); err != nil {
		t.Fatalf("login without object rejected: %v", err)
	}
}
