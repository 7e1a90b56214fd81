package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"engagement/internal/config"
	"engagement/internal/model"
)

// Store is the windowed query surface the indicator collectors consume, plus
// the write path used by ingest. Timestamps are stored as unix epoch seconds.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	EnrolledUsers(ctx context.Context, courseID int64) ([]int64, error)
	Enroll(ctx context.Context, courseID, userID int64) error

	LoginEvents(ctx context.Context, courseID int64, win model.Window) ([]model.LoginEvent, error)
	ForumPosts(ctx context.Context, courseID int64, win model.Window) ([]model.ForumPost, error)
	ForumReads(ctx context.Context, courseID int64, win model.Window) ([]model.ForumRead, error)
	DiscussionViews(ctx context.Context, courseID int64, win model.Window, unique bool) ([]model.DiscussionView, error)

	GradeItems(ctx context.Context, courseID int64) ([]model.GradeItem, error)
	GradesForItems(ctx context.Context, itemIDs []int64, win model.Window) ([]model.Grade, error)

	AssignmentsByIDs(ctx context.Context, kind model.AssignmentKind, ids []int64) ([]model.Assignment, error)
	SubmissionsByAssignment(ctx context.Context, kind model.AssignmentKind, ids []int64) ([]model.AssignmentSubmission, error)

	QuizzesByIDs(ctx context.Context, ids []int64) ([]model.Quiz, error)
	QuizAttemptsByQuiz(ctx context.Context, ids []int64) ([]model.QuizAttempt, error)
	QuizOverridesByQuiz(ctx context.Context, ids []int64) ([]model.QuizOverride, error)
	GroupMembers(ctx context.Context, groupIDs []int64) ([]model.GroupMember, error)

	Settings(ctx context.Context, courseID int64, indicator string) (map[string]string, error)
	SaveSettings(ctx context.Context, courseID int64, indicator string, values map[string]string) error

	InsertEvent(ctx context.Context, ev model.ActivityEvent) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

// baseStore holds the query implementations shared by both dialects. SQL is
// written with ? placeholders; the postgres store rebinds them to $n.
type baseStore struct {
	db     *sql.DB
	rebind func(string) string
}

func passthrough(q string) string { return q }

func rebindDollar(q string) string {
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, b.rebind(q), args...)
}

func (b *baseStore) exec(ctx context.Context, q string, args ...any) error {
	_, err := b.db.ExecContext(ctx, b.rebind(q), args...)
	return err
}

// inArgs expands an id list into a placeholder string and args slice.
func inArgs(ids []int64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return strings.Join(ph, ","), args
}

func (b *baseStore) EnrolledUsers(ctx context.Context, courseID int64) ([]int64, error) {
	rows, err := b.query(ctx,
		`SELECT user_id FROM enrollments WHERE course_id = ? ORDER BY user_id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (b *baseStore) Enroll(ctx context.Context, courseID, userID int64) error {
	return b.exec(ctx,
		`INSERT INTO enrollments (course_id, user_id) VALUES (?, ?)
		 ON CONFLICT (course_id, user_id) DO NOTHING`, courseID, userID)
}

func (b *baseStore) LoginEvents(ctx context.Context, courseID int64, win model.Window) ([]model.LoginEvent, error) {
	rows, err := b.query(ctx,
		`SELECT user_id, ts FROM login_events
		 WHERE course_id = ? AND ts >= ? AND ts <= ?
		 ORDER BY ts ASC, user_id ASC`,
		courseID, win.Start.Unix(), win.End.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LoginEvent
	for rows.Next() {
		var ev model.LoginEvent
		var ts int64
		if err := rows.Scan(&ev.UserID, &ts); err != nil {
			return nil, err
		}
		ev.Time = unixTime(ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (b *baseStore) ForumPosts(ctx context.Context, courseID int64, win model.Window) ([]model.ForumPost, error) {
	rows, err := b.query(ctx,
		`SELECT user_id, discussion_id, parent_id, created FROM forum_posts
		 WHERE course_id = ? AND created >= ? AND created <= ?
		 ORDER BY created ASC, id ASC`,
		courseID, win.Start.Unix(), win.End.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ForumPost
	for rows.Next() {
		var p model.ForumPost
		var created int64
		if err := rows.Scan(&p.UserID, &p.DiscussionID, &p.ParentID, &created); err != nil {
			return nil, err
		}
		p.Created = unixTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *baseStore) ForumReads(ctx context.Context, courseID int64, win model.Window) ([]model.ForumRead, error) {
	rows, err := b.query(ctx,
		`SELECT user_id, discussion_id, first_read FROM forum_reads
		 WHERE course_id = ? AND first_read >= ? AND first_read <= ?
		 ORDER BY first_read ASC, id ASC`,
		courseID, win.Start.Unix(), win.End.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ForumRead
	for rows.Next() {
		var r model.ForumRead
		var ts int64
		if err := rows.Scan(&r.UserID, &r.DiscussionID, &ts); err != nil {
			return nil, err
		}
		r.FirstRead = unixTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *baseStore) DiscussionViews(ctx context.Context, courseID int64, win model.Window, unique bool) ([]model.DiscussionView, error) {
	q := `SELECT user_id, discussion_id, MIN(ts) FROM discussion_views
	      WHERE course_id = ? AND ts >= ? AND ts <= ?
	      GROUP BY user_id, discussion_id
	      ORDER BY user_id, discussion_id`
	if !unique {
		q = `SELECT user_id, discussion_id, ts FROM discussion_views
		     WHERE course_id = ? AND ts >= ? AND ts <= ?
		     ORDER BY ts ASC, id ASC`
	}
	rows, err := b.query(ctx, q, courseID, win.Start.Unix(), win.End.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DiscussionView
	for rows.Next() {
		var v model.DiscussionView
		var ts int64
		if err := rows.Scan(&v.UserID, &v.DiscussionID, &ts); err != nil {
			return nil, err
		}
		v.Time = unixTime(ts)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (b *baseStore) GradeItems(ctx context.Context, courseID int64) ([]model.GradeItem, error) {
	rows, err := b.query(ctx,
		`SELECT id, item_type, module, instance_id, name, grade_max, sort_order
		 FROM grade_items WHERE course_id = ?
		 ORDER BY sort_order ASC, id ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.GradeItem
	for rows.Next() {
		var gi model.GradeItem
		var typ string
		if err := rows.Scan(&gi.ID, &typ, &gi.Module, &gi.InstanceID, &gi.Name, &gi.GradeMax, &gi.SortOrder); err != nil {
			return nil, err
		}
		gi.Type = model.GradeItemType(typ)
		out = append(out, gi)
	}
	return out, rows.Err()
}

func (b *baseStore) GradesForItems(ctx context.Context, itemIDs []int64, win model.Window) ([]model.Grade, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	ph, args := inArgs(itemIDs)
	args = append(args, win.Start.Unix(), win.End.Unix())
	rows, err := b.query(ctx,
		`SELECT item_id, user_id, final_grade, graded_at FROM grades
		 WHERE item_id IN (`+ph+`) AND final_grade IS NOT NULL
		   AND graded_at >= ? AND graded_at <= ?
		 ORDER BY item_id, user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Grade
	for rows.Next() {
		var g model.Grade
		var ts int64
		if err := rows.Scan(&g.ItemID, &g.UserID, &g.Final, &ts); err != nil {
			return nil, err
		}
		g.GradedAt = unixTime(ts)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (b *baseStore) AssignmentsByIDs(ctx context.Context, kind model.AssignmentKind, ids []int64) ([]model.Assignment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inArgs(ids)
	args = append([]any{string(kind)}, args...)
	rows, err := b.query(ctx,
		`SELECT id, name, due_at, no_submissions FROM assignments
		 WHERE kind = ? AND id IN (`+ph+`)
		 ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var due int64
		if err := rows.Scan(&a.ID, &a.Name, &due, &a.NoSubmissions); err != nil {
			return nil, err
		}
		a.Kind = kind
		a.Due = unixTime(due)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (b *baseStore) SubmissionsByAssignment(ctx context.Context, kind model.AssignmentKind, ids []int64) ([]model.AssignmentSubmission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inArgs(ids)
	args = append([]any{string(kind)}, args...)
	rows, err := b.query(ctx,
		`SELECT s.assignment_id, s.user_id, s.submitted_at
		 FROM assignment_submissions s
		 JOIN assignments a ON a.id = s.assignment_id AND a.kind = ?
		 WHERE s.assignment_id IN (`+ph+`)
		 ORDER BY s.assignment_id, s.user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AssignmentSubmission
	for rows.Next() {
		var s model.AssignmentSubmission
		var ts int64
		if err := rows.Scan(&s.AssignmentID, &s.UserID, &ts); err != nil {
			return nil, err
		}
		s.SubmittedAt = unixTime(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (b *baseStore) QuizzesByIDs(ctx context.Context, ids []int64) ([]model.Quiz, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inArgs(ids)
	rows, err := b.query(ctx,
		`SELECT id, name, close_at FROM quizzes WHERE id IN (`+ph+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Quiz
	for rows.Next() {
		var q model.Quiz
		var closeAt int64
		if err := rows.Scan(&q.ID, &q.Name, &closeAt); err != nil {
			return nil, err
		}
		q.Close = unixTime(closeAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (b *baseStore) QuizAttemptsByQuiz(ctx context.Context, ids []int64) ([]model.QuizAttempt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inArgs(ids)
	rows, err := b.query(ctx,
		`SELECT quiz_id, user_id, finished_at FROM quiz_attempts
		 WHERE quiz_id IN (`+ph+`) AND finished_at > 0 AND preview = 0
		 ORDER BY quiz_id, user_id, finished_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.QuizAttempt
	for rows.Next() {
		var a model.QuizAttempt
		var ts int64
		if err := rows.Scan(&a.QuizID, &a.UserID, &ts); err != nil {
			return nil, err
		}
		a.Finished = unixTime(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (b *baseStore) QuizOverridesByQuiz(ctx context.Context, ids []int64) ([]model.QuizOverride, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inArgs(ids)
	rows, err := b.query(ctx,
		`SELECT quiz_id, COALESCE(user_id, 0), COALESCE(group_id, 0), close_at
		 FROM quiz_overrides
		 WHERE quiz_id IN (`+ph+`) AND close_at IS NOT NULL
		 ORDER BY quiz_id, user_id, group_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.QuizOverride
	for rows.Next() {
		var o model.QuizOverride
		var closeAt int64
		if err := rows.Scan(&o.QuizID, &o.UserID, &o.GroupID, &closeAt); err != nil {
			return nil, err
		}
		o.Close = unixTime(closeAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (b *baseStore) GroupMembers(ctx context.Context, groupIDs []int64) ([]model.GroupMember, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	ph, args := inArgs(groupIDs)
	rows, err := b.query(ctx,
		`SELECT group_id, user_id FROM group_members
		 WHERE group_id IN (`+ph+`)
		 ORDER BY group_id, user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.GroupMember
	for rows.Next() {
		var gm model.GroupMember
		if err := rows.Scan(&gm.GroupID, &gm.UserID); err != nil {
			return nil, err
		}
		out = append(out, gm)
	}
	return out, rows.Err()
}

func (b *baseStore) Settings(ctx context.Context, courseID int64, indicator string) (map[string]string, error) {
	rows, err := b.query(ctx,
		`SELECT name, value FROM indicator_settings
		 WHERE course_id = ? AND indicator = ?`, courseID, indicator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

func (b *baseStore) SaveSettings(ctx context.Context, courseID int64, indicator string, values map[string]string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for name, value := range values {
		if _, err := tx.ExecContext(ctx, b.rebind(
			`INSERT INTO indicator_settings (course_id, indicator, name, value)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (course_id, indicator, name) DO UPDATE SET value = excluded.value`),
			courseID, indicator, name, value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *baseStore) InsertEvent(ctx context.Context, ev model.ActivityEvent) error {
	ts := ev.Time.Unix()
	switch ev.Type {
	case model.EventLogin:
		return b.exec(ctx,
			`INSERT INTO login_events (course_id, user_id, ts) VALUES (?, ?, ?)`,
			ev.CourseID, ev.UserID, ts)
	case model.EventDiscussionView:
		return b.exec(ctx,
			`INSERT INTO discussion_views (course_id, user_id, discussion_id, ts) VALUES (?, ?, ?, ?)`,
			ev.CourseID, ev.UserID, ev.ObjectID, ts)
	case model.EventForumPost:
		return b.exec(ctx,
			`INSERT INTO forum_posts (course_id, user_id, discussion_id, parent_id, created) VALUES (?, ?, ?, ?, ?)`,
			ev.CourseID, ev.UserID, ev.ObjectID, ev.ParentID, ts)
	case model.EventForumRead:
		return b.exec(ctx,
			`INSERT INTO forum_reads (course_id, user_id, discussion_id, first_read) VALUES (?, ?, ?, ?)`,
			ev.CourseID, ev.UserID, ev.ObjectID, ts)
	default:
		return fmt.Errorf("unknown event type: %q", ev.Type)
	}
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}
