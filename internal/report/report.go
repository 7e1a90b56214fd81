package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"engagement/internal/model"
)

// Heatmap direction tells a renderer which end of a column's range to color
// as bad.
const (
	HighIsBad = "high"
	LowIsBad  = "low"
)

// Column is one course overview column: a header, a heatmap direction and a
// rendered value per user.
type Column struct {
	Header  string           `json:"header"`
	Heatmap string           `json:"heatmap"`
	Values  map[int64]string `json:"values"`
}

// ActivitySource is the slice of the storage layer the report reads raw
// counters from.
type ActivitySource interface {
	LoginEvents(ctx context.Context, courseID int64, win model.Window) ([]model.LoginEvent, error)
	ForumPosts(ctx context.Context, courseID int64, win model.Window) ([]model.ForumPost, error)
	DiscussionViews(ctx context.Context, courseID int64, win model.Window, unique bool) ([]model.DiscussionView, error)
}

// Build renders the course overview table from computed risks plus raw
// activity counters. Columns come out in a fixed order: totals first, then
// one risk column per indicator, then the activity columns.
func Build(ctx context.Context, risks map[int64]model.CourseRisk, src ActivitySource, courseID int64, win model.Window) ([]Column, error) {
	users := make([]int64, 0, len(risks))
	for uid := range risks {
		users = append(users, uid)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	columns := []Column{totalColumn(risks, users)}
	for _, name := range indicatorNames(risks) {
		columns = append(columns, indicatorColumn(name, risks, users))
	}

	activity, err := activityColumns(ctx, src, courseID, win, users)
	if err != nil {
		return nil, err
	}
	columns = append(columns, activity...)
	columns = append(columns, overdueColumn(risks, users), thresholdColumn(risks, users))
	return columns, nil
}

func indicatorNames(risks map[int64]model.CourseRisk) []string {
	seen := make(map[string]bool)
	var names []string
	for _, cr := range risks {
		for name := range cr.Indicators {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func totalColumn(risks map[int64]model.CourseRisk, users []int64) Column {
	col := Column{Header: "Total risk", Heatmap: HighIsBad, Values: make(map[int64]string, len(users))}
	for _, uid := range users {
		col.Values[uid] = percent(risks[uid].Total)
	}
	return col
}

func indicatorColumn(name string, risks map[int64]model.CourseRisk, users []int64) Column {
	header := name + " risk"
	if name != "" {
		header = strings.ToUpper(name[:1]) + name[1:] + " risk"
	}
	col := Column{
		Header:  header,
		Heatmap: HighIsBad,
		Values:  make(map[int64]string, len(users)),
	}
	for _, uid := range users {
		col.Values[uid] = percent(risks[uid].Indicators[name].Risk)
	}
	return col
}

func activityColumns(ctx context.Context, src ActivitySource, courseID int64, win model.Window, users []int64) ([]Column, error) {
	logins, err := src.LoginEvents(ctx, courseID, win)
	if err != nil {
		return nil, fmt.Errorf("login events: %w", err)
	}
	posts, err := src.ForumPosts(ctx, courseID, win)
	if err != nil {
		return nil, fmt.Errorf("forum posts: %w", err)
	}
	views, err := src.DiscussionViews(ctx, courseID, win, false)
	if err != nil {
		return nil, fmt.Errorf("discussion views: %w", err)
	}

	lastLogin := make(map[int64]float64)
	for _, ev := range logins {
		lastLogin[ev.UserID] = win.End.Sub(ev.Time).Hours() / 24
	}
	posted := make(map[int64]int)
	for _, p := range posts {
		posted[p.UserID]++
	}
	read := make(map[int64]int)
	for _, v := range views {
		read[v.UserID]++
	}

	sinceCol := Column{Header: "Days since last login", Heatmap: HighIsBad, Values: make(map[int64]string, len(users))}
	postedCol := Column{Header: "Forum posts", Heatmap: LowIsBad, Values: make(map[int64]string, len(users))}
	readCol := Column{Header: "Posts read", Heatmap: LowIsBad, Values: make(map[int64]string, len(users))}
	for _, uid := range users {
		if days, ok := lastLogin[uid]; ok {
			sinceCol.Values[uid] = fmt.Sprintf("%.1f", days)
		} else {
			sinceCol.Values[uid] = "never"
		}
		postedCol.Values[uid] = fmt.Sprintf("%d", posted[uid])
		readCol.Values[uid] = fmt.Sprintf("%d", read[uid])
	}
	return []Column{sinceCol, postedCol, readCol}, nil
}

// overdueColumn counts unsubmitted past-due assessments out of the
// explanation trail.
func overdueColumn(risks map[int64]model.CourseRisk, users []int64) Column {
	col := Column{Header: "Overdue assessments", Heatmap: HighIsBad, Values: make(map[int64]string, len(users))}
	for _, uid := range users {
		n := 0
		for _, r := range risks[uid].Indicators["assessment"].Reasons {
			if r.Detail == "not submitted" {
				n++
			}
		}
		col.Values[uid] = fmt.Sprintf("%d", n)
	}
	return col
}

// thresholdColumn lists the triggered gradebook items by name.
func thresholdColumn(risks map[int64]model.CourseRisk, users []int64) Column {
	col := Column{Header: "Triggered grade thresholds", Heatmap: HighIsBad, Values: make(map[int64]string, len(users))}
	for _, uid := range users {
		var names []string
		for _, r := range risks[uid].Indicators["gradebook"].Reasons {
			if r.ContributionPct > 0 {
				names = append(names, r.Title)
			}
		}
		col.Values[uid] = strings.Join(names, ", ")
	}
	return col
}

func percent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}
