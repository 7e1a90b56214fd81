package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"engagement/internal/model"
)

// ParseEventBytes decodes one activity event from a JSON object.
func ParseEventBytes(data []byte) (model.ActivityEvent, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return model.ActivityEvent{}, err
	}
	return ParseEventMap(obj)
}

// ParseEventMap builds an activity event out of loosely named JSON fields.
// Producers disagree on key names, so each field accepts a few aliases.
// Timestamps may be unix epoch seconds or RFC 3339.
func ParseEventMap(obj map[string]interface{}) (model.ActivityEvent, error) {
	fields := make(map[string]string, len(obj))
	for key, val := range obj {
		fields[strings.ToLower(key)] = fmt.Sprint(val)
	}

	ev := model.ActivityEvent{
		Type: model.EventType(firstNonEmpty(fields, "type", "event", "action")),
	}
	switch ev.Type {
	case model.EventLogin, model.EventDiscussionView, model.EventForumPost, model.EventForumRead:
	case "":
		return ev, errors.New("missing event type")
	default:
		return ev, fmt.Errorf("unknown event type: %q", ev.Type)
	}

	var err error
	if ev.CourseID, err = parseID(firstNonEmpty(fields, "course", "course_id", "courseid")); err != nil {
		return ev, fmt.Errorf("course: %w", err)
	}
	if ev.UserID, err = parseID(firstNonEmpty(fields, "user", "user_id", "userid")); err != nil {
		return ev, fmt.Errorf("user: %w", err)
	}
	if raw := firstNonEmpty(fields, "object", "object_id", "discussion", "discussion_id"); raw != "" {
		if ev.ObjectID, err = parseID(raw); err != nil {
			return ev, fmt.Errorf("object: %w", err)
		}
	}
	if ev.Type != model.EventLogin && ev.ObjectID == 0 {
		return ev, errors.New("missing object id")
	}
	if raw := firstNonEmpty(fields, "parent", "parent_id", "parentid"); raw != "" {
		if ev.ParentID, err = parseID(raw); err != nil {
			return ev, fmt.Errorf("parent: %w", err)
		}
	}

	ts := firstNonEmpty(fields, "time", "timestamp", "ts", "created")
	if ts == "" {
		return ev, errors.New("missing timestamp")
	}
	if ev.Time, err = parseTime(ts); err != nil {
		return ev, fmt.Errorf("timestamp: %w", err)
	}
	return ev, nil
}

func firstNonEmpty(fields map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

func parseID(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("missing")
	}
	// fmt.Sprint renders JSON numbers as floats; accept both forms.
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f), nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseTime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
