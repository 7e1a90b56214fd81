package indicator

import (
	"context"
	"errors"

	"engagement/internal/model"
)

var errTest = errors.New("source unavailable")

// fakeStore backs the collector tests with in-memory rows. Windowed methods
// filter the same way the SQL layer does; per-method errors can be injected
// to exercise the degraded paths.
type fakeStore struct {
	logins      []model.LoginEvent
	posts       []model.ForumPost
	reads       []model.ForumRead
	views       []model.DiscussionView
	items       []model.GradeItem
	grades      []model.Grade
	assignments map[model.AssignmentKind][]model.Assignment
	subs        map[model.AssignmentKind][]model.AssignmentSubmission
	quizzes     []model.Quiz
	attempts    []model.QuizAttempt
	overrides   []model.QuizOverride
	members     []model.GroupMember
	settings    map[string]string
	errs        map[string]error
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func (f *fakeStore) EnrolledUsers(ctx context.Context, courseID int64) ([]int64, error) {
	return nil, f.errs["EnrolledUsers"]
}

func (f *fakeStore) Enroll(ctx context.Context, courseID, userID int64) error { return nil }

func (f *fakeStore) LoginEvents(ctx context.Context, courseID int64, win model.Window) ([]model.LoginEvent, error) {
	if err := f.errs["LoginEvents"]; err != nil {
		return nil, err
	}
	var out []model.LoginEvent
	for _, ev := range f.logins {
		if win.Contains(ev.Time) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) ForumPosts(ctx context.Context, courseID int64, win model.Window) ([]model.ForumPost, error) {
	if err := f.errs["ForumPosts"]; err != nil {
		return nil, err
	}
	var out []model.ForumPost
	for _, p := range f.posts {
		if win.Contains(p.Created) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ForumReads(ctx context.Context, courseID int64, win model.Window) ([]model.ForumRead, error) {
	if err := f.errs["ForumReads"]; err != nil {
		return nil, err
	}
	var out []model.ForumRead
	for _, r := range f.reads {
		if win.Contains(r.FirstRead) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) DiscussionViews(ctx context.Context, courseID int64, win model.Window, unique bool) ([]model.DiscussionView, error) {
	if err := f.errs["DiscussionViews"]; err != nil {
		return nil, err
	}
	var out []model.DiscussionView
	seen := make(map[[2]int64]bool)
	for _, v := range f.views {
		if !win.Contains(v.Time) {
			continue
		}
		if unique {
			key := [2]int64{v.UserID, v.DiscussionID}
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeStore) GradeItems(ctx context.Context, courseID int64) ([]model.GradeItem, error) {
	return f.items, f.errs["GradeItems"]
}

func (f *fakeStore) GradesForItems(ctx context.Context, itemIDs []int64, win model.Window) ([]model.Grade, error) {
	if err := f.errs["GradesForItems"]; err != nil {
		return nil, err
	}
	wanted := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	var out []model.Grade
	for _, g := range f.grades {
		if wanted[g.ItemID] && win.Contains(g.GradedAt) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) AssignmentsByIDs(ctx context.Context, kind model.AssignmentKind, ids []int64) ([]model.Assignment, error) {
	return f.assignments[kind], f.errs["AssignmentsByIDs"]
}

func (f *fakeStore) SubmissionsByAssignment(ctx context.Context, kind model.AssignmentKind, ids []int64) ([]model.AssignmentSubmission, error) {
	return f.subs[kind], f.errs["SubmissionsByAssignment"]
}

func (f *fakeStore) QuizzesByIDs(ctx context.Context, ids []int64) ([]model.Quiz, error) {
	return f.quizzes, f.errs["QuizzesByIDs"]
}

func (f *fakeStore) QuizAttemptsByQuiz(ctx context.Context, ids []int64) ([]model.QuizAttempt, error) {
	return f.attempts, f.errs["QuizAttemptsByQuiz"]
}

func (f *fakeStore) QuizOverridesByQuiz(ctx context.Context, ids []int64) ([]model.QuizOverride, error) {
	return f.overrides, f.errs["QuizOverridesByQuiz"]
}

func (f *fakeStore) GroupMembers(ctx context.Context, groupIDs []int64) ([]model.GroupMember, error) {
	return f.members, f.errs["GroupMembers"]
}

func (f *fakeStore) Settings(ctx context.Context, courseID int64, indicator string) (map[string]string, error) {
	return f.settings, f.errs["Settings"]
}

func (f *fakeStore) SaveSettings(ctx context.Context, courseID int64, indicator string, values map[string]string) error {
	if f.settings == nil {
		f.settings = make(map[string]string)
	}
	for k, v := range values {
		f.settings[k] = v
	}
	return nil
}

func (f *fakeStore) InsertEvent(ctx context.Context, ev model.ActivityEvent) error {
	return f.errs["InsertEvent"]
}
