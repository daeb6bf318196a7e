// Package dashboard aggregates what the student and teacher dashboards show.
//
// A view is bound to one credential and one user. Reads fan out in parallel
// and a failed read degrades its slice to empty instead of failing the view.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/metrics"
	"lmsportal/internal/model"
)

// API is the part of the LMS gateway the dashboards use. *lmsapi.Client implements it.
type API interface {
	Courses(ctx context.Context, token string) ([]model.Course, error)
	TeacherCourses(ctx context.Context, token, teacherID string) ([]model.Course, error)
	CreateCourse(ctx context.Context, token string, in lmsapi.NewCourse) (model.Course, error)
	CourseStudents(ctx context.Context, token, courseID string) ([]model.User, error)
	MyEnrollments(ctx context.Context, token string) ([]model.Enrollment, error)
	Enroll(ctx context.Context, token, courseID string) error
	Unenroll(ctx context.Context, token, courseID string) error
	Assignments(ctx context.Context, token, courseID string) ([]model.Assignment, error)
	CreateAssignment(ctx context.Context, token, courseID string, in lmsapi.NewAssignment) (model.Assignment, error)
	Submit(ctx context.Context, token, assignmentID string, in lmsapi.SubmissionInput) error
	Submissions(ctx context.Context, token, assignmentID string) ([]model.Submission, error)
	Grade(ctx context.Context, token, submissionID, grade string) error
	Messages(ctx context.Context, token, userID string) ([]model.Notification, error)
	Notifications(ctx context.Context, token, userID string) ([]model.Notification, error)
}

// Notifier is told about every recomputed, non-empty notification feed.
type Notifier interface {
	Notify(ctx context.Context, token string, user model.User, feed []model.Notification)
}

var (
	ErrEmptySubmission      = errors.New("dashboard: a submission needs a file or text")
	ErrNoCourseSelected     = errors.New("dashboard: no course selected")
	ErrNoAssignmentSelected = errors.New("dashboard: no assignment selected")
)

// Deps are the collaborators shared by both views.
type Deps struct {
	API      API
	Notifier Notifier
	Log      *logsvc.Logger
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// View is a role-specific dashboard.
type View interface {
	Account() model.User
	Refresh(ctx context.Context) error
}

// For returns the dashboard matching the user's role.
func For(d Deps, token string, user model.User) View {
	switch k := user.Kind().(type) {
	case model.Teacher:
		return NewTeacherView(d, token, k)
	case model.Student:
		return NewStudentView(d, token, k)
	}
	return NewStudentView(d, token, model.Student{User: user})
}

// generation orders overlapping refreshes. A result is applied only when no
// newer refresh started after it.
type generation struct {
	mu      sync.Mutex
	started uint64
}

func (g *generation) next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started++
	return g.started
}

func (g *generation) current(n uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return n == g.started
}

// slice records a degraded read. Rejected credentials are kept so the caller
// can send the user back to the login view.
type slice struct {
	log  *logsvc.Logger
	mu   sync.Mutex
	auth error
}

func (s *slice) failed(name string, err error) {
	metrics.SliceFailures.WithLabelValues(name).Inc()
	s.log.Errorf("dashboard: load %s: %w", name, err)
	if errors.Is(err, lmsapi.ErrUnauthorized) {
		s.mu.Lock()
		if s.auth == nil {
			s.auth = err
		}
		s.mu.Unlock()
	}
}

func (s *slice) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
