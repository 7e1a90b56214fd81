package report

import (
	"context"
	"testing"
	"time"

	"engagement/internal/model"
)

type fakeSource struct {
	logins []model.LoginEvent
	posts  []model.ForumPost
	views  []model.DiscussionView
}

func (f *fakeSource) LoginEvents(ctx context.Context, courseID int64, win model.Window) ([]model.LoginEvent, error) {
	return f.logins, nil
}

func (f *fakeSource) ForumPosts(ctx context.Context, courseID int64, win model.Window) ([]model.ForumPost, error) {
	return f.posts, nil
}

func (f *fakeSource) DiscussionViews(ctx context.Context, courseID int64, win model.Window, unique bool) ([]model.DiscussionView, error) {
	return f.views, nil
}

func TestBuildColumns(t *testing.T) {
	win := model.Window{
		Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	risks := map[int64]model.CourseRisk{
		1: {
			Total: 0.125,
			Indicators: map[string]model.RiskResult{
				"login": {Risk: 0.5},
				"assessment": {Risk: 0.3, Reasons: []model.Reason{
					{Title: "Assignment: Essay", Detail: "not submitted"},
					{Title: "Quiz: Midterm", Detail: "submitted 2024-02-10 12:00"},
				}},
				"gradebook": {Risk: 0.7, Reasons: []model.Reason{
					{Title: "Midterm", ContributionPct: 70},
					{Title: "Participation", ContributionPct: 0},
				}},
			},
		},
		2: {Indicators: map[string]model.RiskResult{}},
	}
	src := &fakeSource{
		logins: []model.LoginEvent{{UserID: 1, Time: win.End.Add(-36 * time.Hour)}},
		posts:  []model.ForumPost{{UserID: 1, DiscussionID: 4, Created: win.Start.Add(time.Hour)}},
	}

	columns, err := Build(context.Background(), risks, src, 1, win)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	byHeader := make(map[string]Column, len(columns))
	for _, c := range columns {
		byHeader[c.Header] = c
	}

	if got := byHeader["Total risk"].Values[1]; got != "12.5%" {
		t.Fatalf("total risk = %q, want 12.5%%", got)
	}
	if got := byHeader["Login risk"].Values[1]; got != "50.0%" {
		t.Fatalf("login risk = %q", got)
	}
	if got := byHeader["Days since last login"].Values[1]; got != "1.5" {
		t.Fatalf("days since login = %q, want 1.5", got)
	}
	if got := byHeader["Days since last login"].Values[2]; got != "never" {
		t.Fatalf("days since login = %q, want never", got)
	}
	if got := byHeader["Forum posts"].Values[1]; got != "1" {
		t.Fatalf("forum posts = %q, want 1", got)
	}
	if got := byHeader["Overdue assessments"].Values[1]; got != "1" {
		t.Fatalf("overdue = %q, want 1", got)
	}
	if got := byHeader["Triggered grade thresholds"].Values[1]; got != "Midterm" {
		t.Fatalf("thresholds = %q, want Midterm", got)
	}
}

func TestBuildColumnOrderStable(t *testing.T) {
	win := model.Window{
		Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	risks := map[int64]model.CourseRisk{
		1: {Indicators: map[string]model.RiskResult{"login": {}, "forum": {}}},
	}
	first, err := Build(context.Background(), risks, &fakeSource{}, 1, win)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := Build(context.Background(), risks, &fakeSource{}, 1, win)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("column counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Header != second[i].Header {
			t.Fatalf("column %d: %q vs %q", i, first[i].Header, second[i].Header)
		}
	}
}
