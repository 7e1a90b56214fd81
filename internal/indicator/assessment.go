package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"engagement/internal/model"
	"engagement/internal/risk"
	"engagement/internal/storage"
)

// Assessment scores submission lateness across every assessable activity in
// the course: native assignments, legacy assignments, quizzes and external
// tool items. Each item contributes in proportion to its share of the total
// grade value.
type Assessment struct {
	logger *slog.Logger
}

func NewAssessment(logger *slog.Logger) *Assessment {
	return &Assessment{logger: logger}
}

func (a *Assessment) Name() string { return "assessment" }

func (a *Assessment) Defaults() Settings {
	return Settings{
		"overduegracedays":             float64(0),
		"overduemaximumdays":           float64(14),
		"overduesubmittedweighting":    0.5,
		"overduenotsubmittedweighting": float64(1),
	}
}

func (a *Assessment) WeightKey(name string) bool {
	return strings.Contains(name, "weighting")
}

func (a *Assessment) ValidateSettings(values map[string]string) error {
	for _, name := range []string{"overduegracedays", "overduemaximumdays"} {
		raw, ok := values[name]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("setting %s: not a number: %q", name, raw)
		}
		if f < 0 {
			return fmt.Errorf("setting %s: must not be negative", name)
		}
	}
	return nil
}

type assessmentDataset struct {
	win         model.Window
	assessments []model.Assessment
	sumGrades   float64
}

// dueFallback stands in for an unknown due date. One second past the epoch
// drives any real submission time far past the lateness maximum.
var dueFallback = time.Unix(1, 0).UTC()

func (a *Assessment) Collect(ctx context.Context, src storage.Store, courseID int64, win model.Window, cfg Settings) (Dataset, error) {
	items, err := src.GradeItems(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("grade items: %w", err)
	}

	byModule := make(map[string][]model.GradeItem)
	for _, gi := range items {
		if gi.Type != model.GradeItemModule {
			continue
		}
		byModule[gi.Module] = append(byModule[gi.Module], gi)
	}

	ds := &assessmentDataset{win: win}
	steps := []struct {
		module  string
		collect func(context.Context, storage.Store, []model.GradeItem, *assessmentDataset) error
	}{
		{"assign", a.assignmentFamily(model.AssignNative, "Assignment")},
		{"assignment", a.assignmentFamily(model.AssignLegacy, "Assignment (legacy)")},
		{"quiz", a.collectQuizzes},
		{"external", a.assignmentFamily(model.AssignExternal, "External tool")},
	}
	for _, step := range steps {
		group := byModule[step.module]
		if len(group) == 0 {
			continue
		}
		if err := step.collect(ctx, src, group, ds); err != nil {
			// One missing activity source must not sink the rest.
			if a.logger != nil {
				a.logger.Warn("assessment source unavailable", "module", step.module, "error", err)
			}
		}
	}
	return ds, nil
}

// assignmentFamily returns a collector for the three assignment-shaped
// sources, which differ only in kind and display prefix.
func (a *Assessment) assignmentFamily(kind model.AssignmentKind, prefix string) func(context.Context, storage.Store, []model.GradeItem, *assessmentDataset) error {
	return func(ctx context.Context, src storage.Store, items []model.GradeItem, ds *assessmentDataset) error {
		ids := make([]int64, 0, len(items))
		gradeMax := make(map[int64]float64, len(items))
		for _, gi := range items {
			ids = append(ids, gi.InstanceID)
			gradeMax[gi.InstanceID] = gi.GradeMax
		}
		assignments, err := src.AssignmentsByIDs(ctx, kind, ids)
		if err != nil {
			return err
		}
		subs, err := src.SubmissionsByAssignment(ctx, kind, ids)
		if err != nil {
			return err
		}
		byAssignment := make(map[int64][]model.AssignmentSubmission)
		for _, s := range subs {
			byAssignment[s.AssignmentID] = append(byAssignment[s.AssignmentID], s)
		}
		for _, asg := range assignments {
			if asg.NoSubmissions {
				continue
			}
			submissions := make(map[int64]model.Submission)
			for _, s := range byAssignment[asg.ID] {
				if !ds.win.Contains(s.SubmittedAt) {
					continue
				}
				submissions[s.UserID] = model.Submission{
					SubmittedAt: s.SubmittedAt,
					Due:         asg.Due,
				}
			}
			ds.assessments = append(ds.assessments, model.Assessment{
				MaxScore:    gradeMax[asg.ID],
				Description: prefix + ": " + asg.Name,
				Due:         asg.Due,
				Submissions: submissions,
			})
			ds.sumGrades += gradeMax[asg.ID]
		}
		return nil
	}
}

func (a *Assessment) collectQuizzes(ctx context.Context, src storage.Store, items []model.GradeItem, ds *assessmentDataset) error {
	ids := make([]int64, 0, len(items))
	gradeMax := make(map[int64]float64, len(items))
	for _, gi := range items {
		ids = append(ids, gi.InstanceID)
		gradeMax[gi.InstanceID] = gi.GradeMax
	}
	quizzes, err := src.QuizzesByIDs(ctx, ids)
	if err != nil {
		return err
	}
	overrides, err := src.QuizOverridesByQuiz(ctx, ids)
	if err != nil {
		return err
	}
	attempts, err := src.QuizAttemptsByQuiz(ctx, ids)
	if err != nil {
		return err
	}

	closeOf := make(map[int64]time.Time, len(quizzes))
	for _, q := range quizzes {
		closeOf[q.ID] = q.Close
	}

	subs := make(map[int64]map[int64]model.Submission, len(quizzes))
	ensure := func(quizID int64) map[int64]model.Submission {
		m := subs[quizID]
		if m == nil {
			m = make(map[int64]model.Submission)
			subs[quizID] = m
		}
		return m
	}

	// User-level overrides bind first; group-level overrides fill the gaps,
	// applied in ascending group id so the lowest group wins a conflict.
	groupClose := make(map[int64]map[int64]time.Time)
	var groupIDs []int64
	for _, o := range overrides {
		if o.UserID != 0 {
			ensure(o.QuizID)[o.UserID] = model.Submission{Due: o.Close, Override: model.OverrideUser}
			continue
		}
		if groupClose[o.GroupID] == nil {
			groupClose[o.GroupID] = make(map[int64]time.Time)
			groupIDs = append(groupIDs, o.GroupID)
		}
		groupClose[o.GroupID][o.QuizID] = o.Close
	}
	if len(groupIDs) > 0 {
		sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })
		members, err := src.GroupMembers(ctx, groupIDs)
		if err != nil {
			return err
		}
		byGroup := make(map[int64][]int64)
		for _, gm := range members {
			byGroup[gm.GroupID] = append(byGroup[gm.GroupID], gm.UserID)
		}
		for _, gid := range groupIDs {
			quizIDs := make([]int64, 0, len(groupClose[gid]))
			for qid := range groupClose[gid] {
				quizIDs = append(quizIDs, qid)
			}
			sort.Slice(quizIDs, func(i, j int) bool { return quizIDs[i] < quizIDs[j] })
			for _, qid := range quizIDs {
				m := ensure(qid)
				for _, uid := range byGroup[gid] {
					if _, taken := m[uid]; taken {
						continue
					}
					m[uid] = model.Submission{Due: groupClose[gid][qid], Override: model.OverrideGroup}
				}
			}
		}
	}

	for _, at := range attempts {
		if !ds.win.Contains(at.Finished) {
			continue
		}
		m := ensure(at.QuizID)
		entry := m[at.UserID]
		entry.SubmittedAt = at.Finished
		if entry.Due.IsZero() {
			entry.Due = closeOf[at.QuizID]
		}
		m[at.UserID] = entry
	}

	for _, q := range quizzes {
		submissions := subs[q.ID]
		if submissions == nil {
			submissions = make(map[int64]model.Submission)
		}
		ds.assessments = append(ds.assessments, model.Assessment{
			MaxScore:    gradeMax[q.ID],
			Description: "Quiz: " + q.Name,
			Due:         q.Close,
			Submissions: submissions,
		})
		ds.sumGrades += gradeMax[q.ID]
	}
	return nil
}

func (a *Assessment) Score(ds Dataset, cfg Settings, userIDs []int64) map[int64]model.RiskResult {
	data := ds.(*assessmentDataset)
	grace := cfg.Float("overduegracedays")
	maxDays := cfg.Float("overduemaximumdays")
	submittedW := cfg.Float("overduesubmittedweighting")
	missingW := cfg.Float("overduenotsubmittedweighting")

	out := make(map[int64]model.RiskResult, len(userIDs))
	for _, uid := range userIDs {
		trail := risk.NewTrail()
		for _, item := range data.assessments {
			var itemWeight float64
			if data.sumGrades > 0 {
				itemWeight = item.MaxScore / data.sumGrades
			}
			sub := item.Submissions[uid]
			reason := model.Reason{Title: item.Description, Override: sub.Override}

			var local float64
			switch {
			case item.Due.After(data.win.End):
				// Not due yet: zero contribution no matter what was
				// submitted, the reason still appears in the trail.
				reason.Logic = "Not due yet, no risk."
				reason.Detail = "due " + formatDue(item.Due)
			case sub.SubmittedAt.IsZero():
				local = risk.Lateness(math.Inf(1), grace, maxDays) * missingW
				reason.Logic = fmt.Sprintf(
					"0%% risk within %g days of the due date. %.0f%% risk %g days after.",
					grace, missingW*100, maxDays)
				reason.Detail = "not submitted"
			default:
				due := sub.Due
				if due.IsZero() {
					due = dueFallback
				}
				daysLate := sub.SubmittedAt.Sub(due).Hours() / 24
				local = risk.Lateness(daysLate, grace, maxDays) * submittedW
				reason.Logic = fmt.Sprintf(
					"0%% risk within %g days of the due date. %.0f%% risk %g days after.",
					grace, submittedW*100, maxDays)
				reason.Detail = "submitted " + formatDue(sub.SubmittedAt)
				if daysLate > 0 {
					reason.Detail += fmt.Sprintf(", %.1f days late", daysLate)
				}
			}
			trail.Item(reason, itemWeight, local)
		}
		out[uid] = trail.Result()
	}
	return out
}

func formatDue(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
