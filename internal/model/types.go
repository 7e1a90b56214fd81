package model

import "time"

// Window is the reporting period. Membership tests are inclusive on both
// ends; the end also serves as "now" for due-date and recency comparisons.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// Days returns the window length in fractional days.
func (w Window) Days() float64 {
	return w.End.Sub(w.Start).Hours() / 24
}

type OverrideKind string

const (
	OverrideUser  OverrideKind = "user"
	OverrideGroup OverrideKind = "group"
)

// Reason is one entry in a user's explanation trail. Percentages are kept
// numeric; the report layer renders them.
type Reason struct {
	Title           string       `json:"title"`
	WeightPct       float64      `json:"weight_pct"`
	LocalRiskPct    float64      `json:"local_risk_pct"`
	ContributionPct float64      `json:"contribution_pct"`
	Logic           string       `json:"logic"`
	Detail          string       `json:"detail,omitempty"`
	Override        OverrideKind `json:"override,omitempty"`
}

// RiskResult is one user's score for one indicator. Ephemeral: recomputed on
// demand and never cached across calls.
type RiskResult struct {
	Risk    float64  `json:"risk"`
	Reasons []Reason `json:"reasons"`
}

// CourseRisk aggregates all indicator results for one user plus the simple
// weighted course-level total.
type CourseRisk struct {
	Total      float64               `json:"total"`
	Indicators map[string]RiskResult `json:"indicators"`
}

// LoginEvent is one row from the unified activity log, ordered by Time.
type LoginEvent struct {
	UserID int64
	Time   time.Time
}

// LoginActivity is the sessionized login dataset for one user.
type LoginActivity struct {
	Sessions  int
	PastWeek  int
	Weeks     map[int]int // ISO week -> sessions started
	Lengths   []float64   // seconds, one per session
	LastEvent time.Time
}

type ForumPost struct {
	UserID       int64
	DiscussionID int64
	ParentID     int64
	Created      time.Time
}

type ForumRead struct {
	UserID       int64
	DiscussionID int64
	FirstRead    time.Time
}

type DiscussionView struct {
	UserID       int64
	DiscussionID int64
	Time         time.Time
}

// ForumActivity is the per-user forum dataset.
type ForumActivity struct {
	Total   int
	New     int
	Replies int
	Read    int
	Weeks   map[int]int
}

// Submission records one user's state against one assessable item. A zero
// SubmittedAt means no submission inside the window. Due falls back to
// epoch+1 when unknown, which drives the lateness toward saturation.
type Submission struct {
	SubmittedAt time.Time
	Due         time.Time
	Override    OverrideKind
}

// Assessment is one assessable activity: a native assignment, a legacy
// assignment, a quiz or an external tool item. Built once by the collector
// and read-only afterwards.
type Assessment struct {
	MaxScore    float64
	Description string
	Due         time.Time
	Submissions map[int64]Submission
}

type GradeItemType string

const (
	GradeItemModule GradeItemType = "mod"
	GradeItemManual GradeItemType = "manual"
	GradeItemCourse GradeItemType = "course"
)

type GradeItem struct {
	ID         int64
	Type       GradeItemType
	Module     string // assign, assignment, quiz, external; empty for manual
	InstanceID int64
	Name       string
	GradeMax   float64
	SortOrder  int
}

type Grade struct {
	ItemID   int64
	UserID   int64
	Final    float64
	GradedAt time.Time
}

type AssignmentKind string

const (
	AssignNative   AssignmentKind = "assign"
	AssignLegacy   AssignmentKind = "assignment"
	AssignExternal AssignmentKind = "external"
)

// Assignment covers the three submission systems that share one shape.
type Assignment struct {
	ID            int64
	Kind          AssignmentKind
	Name          string
	Due           time.Time
	NoSubmissions bool
}

type AssignmentSubmission struct {
	AssignmentID int64
	UserID       int64
	SubmittedAt  time.Time
}

type Quiz struct {
	ID    int64
	Name  string
	Close time.Time
}

type QuizAttempt struct {
	QuizID   int64
	UserID   int64
	Finished time.Time
}

// QuizOverride carries either a user-level or a group-level due-date
// exception; exactly one of UserID/GroupID is non-zero.
type QuizOverride struct {
	QuizID  int64
	UserID  int64
	GroupID int64
	Close   time.Time
}

type GroupMember struct {
	GroupID int64
	UserID  int64
}

type EventType string

const (
	EventLogin          EventType = "login"
	EventDiscussionView EventType = "discussion_view"
	EventForumPost      EventType = "forum_post"
	EventForumRead      EventType = "forum_read"
)

// ActivityEvent is the normalized intake record from Kafka or REST.
type ActivityEvent struct {
	Type     EventType `json:"type"`
	CourseID int64     `json:"course"`
	UserID   int64     `json:"user"`
	ObjectID int64     `json:"object,omitempty"`
	ParentID int64     `json:"parent,omitempty"`
	Time     time.Time `json:"time"`
	Source   string    `json:"source,omitempty"`
}
