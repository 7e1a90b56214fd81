package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/engagement?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, rebind: rebindDollar}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			course_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			PRIMARY KEY (course_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS login_events (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_events_course_ts ON login_events(course_id, ts)`,
		`CREATE TABLE IF NOT EXISTS forum_posts (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			discussion_id BIGINT NOT NULL,
			parent_id BIGINT NOT NULL DEFAULT 0,
			created BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forum_posts_course_created ON forum_posts(course_id, created)`,
		`CREATE TABLE IF NOT EXISTS forum_reads (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			discussion_id BIGINT NOT NULL,
			first_read BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forum_reads_course ON forum_reads(course_id, first_read)`,
		`CREATE TABLE IF NOT EXISTS discussion_views (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			discussion_id BIGINT NOT NULL,
			ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discussion_views_course ON discussion_views(course_id, ts)`,
		`CREATE TABLE IF NOT EXISTS grade_items (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL,
			item_type TEXT NOT NULL,
			module TEXT NOT NULL DEFAULT '',
			instance_id BIGINT NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			grade_max DOUBLE PRECISION NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grade_items_course ON grade_items(course_id)`,
		`CREATE TABLE IF NOT EXISTS grades (
			id BIGSERIAL PRIMARY KEY,
			item_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			final_grade DOUBLE PRECISION,
			graded_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grades_item ON grades(item_id)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			due_at BIGINT NOT NULL DEFAULT 0,
			no_submissions INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS assignment_submissions (
			id BIGSERIAL PRIMARY KEY,
			assignment_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			submitted_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignment_submissions ON assignment_submissions(assignment_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			close_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_attempts (
			id BIGSERIAL PRIMARY KEY,
			quiz_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			finished_at BIGINT NOT NULL DEFAULT 0,
			preview INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_attempts ON quiz_attempts(quiz_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS quiz_overrides (
			id BIGSERIAL PRIMARY KEY,
			quiz_id BIGINT NOT NULL,
			user_id BIGINT,
			group_id BIGINT,
			close_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS indicator_settings (
			course_id BIGINT NOT NULL,
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
