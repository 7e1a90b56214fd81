package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"engagement/internal/model"
	"engagement/internal/risk"
	"engagement/internal/storage"
)

// Forum scores posting and reading activity per week against configured
// no-risk and max-risk rates.
type Forum struct {
	logger *slog.Logger
}

func NewForum(logger *slog.Logger) *Forum {
	return &Forum{logger: logger}
}

func (f *Forum) Name() string { return "forum" }

func (f *Forum) Defaults() Settings {
	return Settings{
		"w_totalposts": 0.56,
		"w_replies":    0.2,
		"w_newposts":   0.12,
		"w_readposts":  0.12,

		"no_totalposts": float64(1),
		"no_replies":    float64(1),
		"no_newposts":   0.5,
		"no_readposts":  float64(1),

		"max_totalposts": float64(0),
		"max_replies":    float64(0),
		"max_newposts":   float64(0),
		"max_readposts":  float64(0),

		"read_count_method": "all",
	}
}

func (f *Forum) WeightKey(name string) bool {
	return strings.HasPrefix(name, "w_")
}

func (f *Forum) ValidateSettings(values map[string]string) error {
	if m, ok := values["read_count_method"]; ok && m != "all" && m != "unique" {
		return fmt.Errorf("read_count_method must be all or unique, got %q", m)
	}
	return validatePercentSum(values, f.WeightKey)
}

type forumDataset struct {
	weeks    float64
	activity map[int64]*model.ForumActivity
}

func (f *Forum) Collect(ctx context.Context, src storage.Store, courseID int64, win model.Window, cfg Settings) (Dataset, error) {
	posts, err := src.ForumPosts(ctx, courseID, win)
	if err != nil {
		return nil, fmt.Errorf("forum posts: %w", err)
	}

	activity := make(map[int64]*model.ForumActivity)
	ensure := func(uid int64) *model.ForumActivity {
		fa := activity[uid]
		if fa == nil {
			fa = &model.ForumActivity{Weeks: make(map[int]int)}
			activity[uid] = fa
		}
		return fa
	}

	for _, p := range posts {
		fa := ensure(p.UserID)
		fa.Total++
		if p.ParentID == 0 {
			fa.New++
		} else {
			fa.Replies++
		}
		_, week := p.Created.ISOWeek()
		fa.Weeks[week]++
	}

	for _, uid := range f.collectReads(ctx, src, courseID, win, cfg.String("read_count_method")) {
		ensure(uid).Read++
	}

	weeks := math.Ceil(win.Days() / 7)
	if weeks < 1 {
		weeks = 1
	}
	return &forumDataset{weeks: weeks, activity: activity}, nil
}

// collectReads returns one user id per counted read. The source depends on
// the read count method: "all" counts every discussion view from the event
// log; "unique" prefers the per-discussion read tracker and falls back to
// deduplicated event log views when the tracker is empty. Missing read
// sources degrade to an empty result, posts still score.
func (f *Forum) collectReads(ctx context.Context, src storage.Store, courseID int64, win model.Window, method string) []int64 {
	warn := func(source string, err error) {
		if f.logger != nil {
			f.logger.Warn("forum read source unavailable", "source", source, "error", err)
		}
	}

	if method != "unique" {
		views, err := src.DiscussionViews(ctx, courseID, win, false)
		if err != nil {
			warn("discussion_views", err)
			return nil
		}
		out := make([]int64, 0, len(views))
		for _, v := range views {
			out = append(out, v.UserID)
		}
		return out
	}

	reads, err := src.ForumReads(ctx, courseID, win)
	if err != nil {
		warn("forum_reads", err)
		reads = nil
	}
	if len(reads) > 0 {
		out := make([]int64, 0, len(reads))
		for _, r := range reads {
			out = append(out, r.UserID)
		}
		return out
	}

	views, err := src.DiscussionViews(ctx, courseID, win, true)
	if err != nil {
		warn("discussion_views", err)
		return nil
	}
	out := make([]int64, 0, len(views))
	for _, v := range views {
		out = append(out, v.UserID)
	}
	return out
}

func (f *Forum) Score(ds Dataset, cfg Settings, userIDs []int64) map[int64]model.RiskResult {
	data := ds.(*forumDataset)
	maxSum := weightSum(cfg, "w_totalposts", "w_replies", "w_newposts", "w_readposts")

	factor := func(trail *risk.Trail, key, title string, count int) {
		rate := float64(count) / data.weeks
		local := risk.Normalize(rate, cfg.Float("no_"+key), cfg.Float("max_"+key))
		trail.Factor(title, cfg.Float("w_"+key), local,
			fmt.Sprintf("0%% risk at %g a week or more. 100%% risk at %g or fewer.",
				cfg.Float("no_"+key), cfg.Float("max_"+key)))
	}

	out := make(map[int64]model.RiskResult, len(userIDs))
	for _, uid := range userIDs {
		fa, ok := data.activity[uid]
		if !ok {
			out[uid] = risk.MaxRisk(
				"No forum activity",
				"No posts or reads in the reporting period, maximum risk.",
				maxSum)
			continue
		}
		trail := risk.NewTrail()
		factor(trail, "totalposts", "Total posts per week", fa.Total)
		factor(trail, "replies", "Replies per week", fa.Replies)
		factor(trail, "newposts", "New discussions per week", fa.New)
		factor(trail, "readposts", "Posts read per week", fa.Read)
		out[uid] = trail.Result()
	}
	return out
}
