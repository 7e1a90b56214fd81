package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engagement/internal/model"
	"engagement/internal/risk"
	"engagement/internal/storage"
)

// Login scores how recently and how regularly a user signs in. Raw log
// events are folded into sessions: a gap longer than session_length starts
// a new one.
type Login struct {
	logger *slog.Logger
}

func NewLogin(logger *slog.Logger) *Login {
	return &Login{logger: logger}
}

func (l *Login) Name() string { return "login" }

func (l *Login) Defaults() Settings {
	return Settings{
		"e_loginspastweek":   float64(2),
		"w_loginspastweek":   0.2,
		"e_loginsperweek":    float64(2),
		"w_loginsperweek":    0.3,
		"e_avgsessionlength": float64(600),
		"w_avgsessionlength": 0.1,
		"e_timesincelast":    float64(604800),
		"w_timesincelast":    0.4,
		"session_length":     float64(3600),
	}
}

func (l *Login) WeightKey(name string) bool {
	return strings.HasPrefix(name, "w_")
}

func (l *Login) ValidateSettings(values map[string]string) error {
	return validatePercentSum(values, l.WeightKey)
}

type loginDataset struct {
	win      model.Window
	activity map[int64]*model.LoginActivity
}

func (l *Login) Collect(ctx context.Context, src storage.Store, courseID int64, win model.Window, cfg Settings) (Dataset, error) {
	events, err := src.LoginEvents(ctx, courseID, win)
	if err != nil {
		return nil, fmt.Errorf("login events: %w", err)
	}
	timeout := time.Duration(cfg.Float("session_length")) * time.Second
	return &loginDataset{win: win, activity: sessionize(events, timeout, win)}, nil
}

// sessionize folds the time-ordered event stream into per-user sessions.
// Each session's length is last event minus first event, the final open
// session included.
func sessionize(events []model.LoginEvent, timeout time.Duration, win model.Window) map[int64]*model.LoginActivity {
	type state struct {
		start time.Time
		last  time.Time
	}
	out := make(map[int64]*model.LoginActivity)
	open := make(map[int64]*state)
	weekAgo := win.End.Add(-7 * 24 * time.Hour)

	for _, ev := range events {
		sa := out[ev.UserID]
		st := open[ev.UserID]
		fresh := st == nil || ev.Time.Sub(st.last) > timeout
		if fresh {
			if st != nil {
				sa.Lengths = append(sa.Lengths, st.last.Sub(st.start).Seconds())
			}
			if sa == nil {
				sa = &model.LoginActivity{Weeks: make(map[int]int)}
				out[ev.UserID] = sa
			}
			sa.Sessions++
			if ev.Time.After(weekAgo) {
				sa.PastWeek++
			}
			_, week := ev.Time.ISOWeek()
			sa.Weeks[week]++
			open[ev.UserID] = &state{start: ev.Time, last: ev.Time}
		} else {
			st.last = ev.Time
		}
		sa.LastEvent = ev.Time
	}
	for uid, st := range open {
		out[uid].Lengths = append(out[uid].Lengths, st.last.Sub(st.start).Seconds())
	}
	return out
}

func (l *Login) Score(ds Dataset, cfg Settings, userIDs []int64) map[int64]model.RiskResult {
	data := ds.(*loginDataset)
	wPast := cfg.Float("w_loginspastweek")
	wAvg := cfg.Float("w_avgsessionlength")
	wPer := cfg.Float("w_loginsperweek")
	wLast := cfg.Float("w_timesincelast")
	ePast := cfg.Float("e_loginspastweek")
	eAvg := cfg.Float("e_avgsessionlength")
	ePer := cfg.Float("e_loginsperweek")
	eLast := cfg.Float("e_timesincelast")
	maxSum := wPast + wAvg + wPer + wLast

	out := make(map[int64]model.RiskResult, len(userIDs))
	for _, uid := range userIDs {
		sa, ok := data.activity[uid]
		if !ok {
			out[uid] = risk.MaxRisk(
				"Never logged in",
				"No login activity in the reporting period, maximum risk.",
				maxSum)
			continue
		}

		trail := risk.NewTrail()

		local := risk.Normalize(float64(sa.PastWeek), ePast, 0)
		trail.Factor("Logins in the past week", wPast, local,
			fmt.Sprintf("0%% risk at %g logins in the last week. 100%% risk at none.", ePast))

		var avgLen float64
		if len(sa.Lengths) > 0 {
			var total float64
			for _, sec := range sa.Lengths {
				total += sec
			}
			avgLen = total / float64(len(sa.Lengths))
		}
		local = risk.Normalize(avgLen, eAvg, 0)
		trail.Factor("Average session length", wAvg, local,
			fmt.Sprintf("0%% risk at session lengths of %g seconds or more.", eAvg))

		var perWeek float64
		if len(sa.Weeks) > 0 {
			var total int
			for _, n := range sa.Weeks {
				total += n
			}
			perWeek = float64(total) / float64(len(sa.Weeks))
		}
		local = risk.Normalize(perWeek, ePer, 0)
		trail.Factor("Logins per week", wPer, local,
			fmt.Sprintf("0%% risk at %g logins a week. 100%% risk at none.", ePer))

		sinceLast := data.win.End.Sub(sa.LastEvent).Seconds()
		local = risk.Normalize(eLast, sinceLast, 0)
		trail.Factor("Time since last login", wLast, local,
			fmt.Sprintf("100%% risk after %g seconds without a login.", eLast))

		out[uid] = trail.Result()
	}
	return out
}
