package indicator

import (
	"context"
	"math"
	"testing"
	"time"

	"engagement/internal/model"
)

var testWindow = model.Window{
	Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSessionizeGapStartsNewSession(t *testing.T) {
	base := testWindow.Start.Add(24 * time.Hour)
	events := []model.LoginEvent{
		{UserID: 1, Time: base},
		{UserID: 1, Time: base.Add(10 * time.Minute)},
		{UserID: 1, Time: base.Add(2 * time.Hour)},
	}
	activity := sessionize(events, time.Hour, testWindow)

	sa := activity[1]
	if sa == nil {
		t.Fatal("no activity for user 1")
	}
	if sa.Sessions != 2 {
		t.Fatalf("sessions = %d, want 2", sa.Sessions)
	}
	if len(sa.Lengths) != 2 {
		t.Fatalf("lengths = %v, want 2 entries", sa.Lengths)
	}
	approx(t, sa.Lengths[0], 600)
	approx(t, sa.Lengths[1], 0)
	if !sa.LastEvent.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("last event = %v", sa.LastEvent)
	}
}

func TestSessionizeCountsPastWeekByWindowEnd(t *testing.T) {
	events := []model.LoginEvent{
		{UserID: 1, Time: testWindow.End.Add(-20 * 24 * time.Hour)},
		{UserID: 1, Time: testWindow.End.Add(-2 * 24 * time.Hour)},
	}
	activity := sessionize(events, time.Hour, testWindow)
	if got := activity[1].PastWeek; got != 1 {
		t.Fatalf("past week sessions = %d, want 1", got)
	}
}

func TestLoginScoreNeverLoggedIn(t *testing.T) {
	ind := NewLogin(nil)
	ds, err := ind.Collect(context.Background(), &fakeStore{}, 1, testWindow, ind.Defaults())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	results := ind.Score(ds, ind.Defaults(), []int64{7})

	res := results[7]
	approx(t, res.Risk, 1.0)
	if len(res.Reasons) != 1 {
		t.Fatalf("reasons = %d, want exactly 1", len(res.Reasons))
	}
}

func TestLoginScoreNoLoginsPastWeek(t *testing.T) {
	old := testWindow.End.Add(-20 * 24 * time.Hour)
	store := &fakeStore{logins: []model.LoginEvent{{UserID: 1, Time: old}}}
	ind := NewLogin(nil)
	ds, err := ind.Collect(context.Background(), store, 1, testWindow, ind.Defaults())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	res := ind.Score(ds, ind.Defaults(), []int64{1})[1]

	// First factor: zero logins in the past week against an expectation of
	// two contributes the full 20% weight.
	approx(t, res.Reasons[0].LocalRiskPct, 100)
	approx(t, res.Reasons[0].ContributionPct, 20)
}

func TestLoginScoreRecentActiveUser(t *testing.T) {
	recent := testWindow.End.Add(-time.Hour)
	store := &fakeStore{logins: []model.LoginEvent{
		{UserID: 1, Time: recent.Add(-20 * time.Minute)},
		{UserID: 1, Time: recent},
	}}
	ind := NewLogin(nil)
	ds, err := ind.Collect(context.Background(), store, 1, testWindow, ind.Defaults())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	res := ind.Score(ds, ind.Defaults(), []int64{1})[1]

	if len(res.Reasons) != 4 {
		t.Fatalf("reasons = %d, want 4", len(res.Reasons))
	}
	// One session of 1200 seconds beats the 600 second expectation.
	approx(t, res.Reasons[1].LocalRiskPct, 0)
	// Logged in an hour before the window end: 3600 of 604800 seconds.
	sinceLast := 3600.0
	wantLast := (sinceLast - 604800) / sinceLast
	if wantLast < 0 {
		wantLast = 0
	}
	approx(t, res.Reasons[3].LocalRiskPct, wantLast*100)
}

func TestLoginContributionsSumToRisk(t *testing.T) {
	store := &fakeStore{logins: []model.LoginEvent{
		{UserID: 1, Time: testWindow.Start.Add(48 * time.Hour)},
	}}
	ind := NewLogin(nil)
	ds, err := ind.Collect(context.Background(), store, 1, testWindow, ind.Defaults())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	res := ind.Score(ds, ind.Defaults(), []int64{1})[1]

	var sum float64
	for _, r := range res.Reasons {
		sum += r.ContributionPct
	}
	approx(t, sum, res.Risk*100)
}
