package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:engagement.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db, rebind: passthrough}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			course_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (course_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS login_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_events_course_ts ON login_events(course_id, ts)`,
		`CREATE TABLE IF NOT EXISTS forum_posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			discussion_id INTEGER NOT NULL,
			parent_id INTEGER NOT NULL DEFAULT 0,
			created INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forum_posts_course_created ON forum_posts(course_id, created)`,
		`CREATE TABLE IF NOT EXISTS forum_reads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			discussion_id INTEGER NOT NULL,
			first_read INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forum_reads_course ON forum_reads(course_id, first_read)`,
		`CREATE TABLE IF NOT EXISTS discussion_views (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			discussion_id INTEGER NOT NULL,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discussion_views_course ON discussion_views(course_id, ts)`,
		`CREATE TABLE IF NOT EXISTS grade_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL,
			item_type TEXT NOT NULL,
			module TEXT NOT NULL DEFAULT '',
			instance_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			grade_max REAL NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grade_items_course ON grade_items(course_id)`,
		`CREATE TABLE IF NOT EXISTS grades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			final_grade REAL,
			graded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grades_item ON grades(item_id)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			due_at INTEGER NOT NULL DEFAULT 0,
			no_submissions INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS assignment_submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			assignment_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			submitted_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignment_submissions ON assignment_submissions(assignment_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			close_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			quiz_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			preview INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_attempts ON quiz_attempts(quiz_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS quiz_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			quiz_id INTEGER NOT NULL,
			user_id INTEGER,
			group_id INTEGER,
			close_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS indicator_settings (
			course_id INTEGER NOT NULL,
			indicator TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (course_id, indicator, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
