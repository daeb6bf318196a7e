package dashboard

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/metrics"
	"lmsportal/internal/model"
)

// maxCourseFetches bounds the per-course assignment reads in flight.
const maxCourseFetches = 8

// StudentState is what the student dashboard renders.
type StudentState struct {
	Courses       []model.Course       `json:"courses"`
	Enrolled      []string             `json:"enrolled"`
	Assignments   []model.Assignment   `json:"assignments"`
	Pending       []model.Assignment   `json:"pending"`
	Upcoming      []model.Assignment   `json:"upcoming"`
	Messages      []model.Notification `json:"messages"`
	Notifications []model.Notification `json:"notifications"`
	Feed          []model.Notification `json:"feed"`
}

// StudentView is the student dashboard of one session.
type StudentView struct {
	deps  Deps
	log   *logsvc.Logger
	token string
	user  model.Student
	gen   generation

	mu            sync.Mutex
	courses       []model.Course
	enrolled      []string
	assignments   map[string][]model.Assignment
	messages      []model.Notification
	notifications []model.Notification
	pending       []model.Assignment
	upcoming      []model.Assignment
	feed          []model.Notification
}

func NewStudentView(d Deps, token string, user model.Student) *StudentView {
	return &StudentView{
		deps:        d,
		log:         d.Log,
		token:       token,
		user:        user,
		assignments: make(map[string][]model.Assignment),
	}
}

func (v *StudentView) Account() model.User { return v.user.User }

// Refresh reloads every slice. Courses, enrollments, messages and
// notifications are read in parallel, then the assignments of each enrolled
// course. The only error returned is a rejected credential.
func (v *StudentView) Refresh(ctx context.Context) error {
	gen := v.gen.next()
	s := &slice{log: v.log}
	uid := v.user.ID

	var (
		courses       []model.Course
		enrollments   []model.Enrollment
		messages      []model.Notification
		notifications []model.Notification
	)
	var g errgroup.Group
	g.Go(func() error {
		out, err := v.deps.API.Courses(ctx, v.token)
		if err != nil {
			s.failed("courses", err)
		}
		courses = out
		return nil
	})
	g.Go(func() error {
		out, err := v.deps.API.MyEnrollments(ctx, v.token)
		if err != nil {
			s.failed("enrollments", err)
		}
		enrollments = out
		return nil
	})
	g.Go(func() error {
		out, err := v.deps.API.Messages(ctx, v.token, uid)
		if err != nil {
			s.failed("messages", err)
		}
		messages = out
		return nil
	})
	g.Go(func() error {
		out, err := v.deps.API.Notifications(ctx, v.token, uid)
		if err != nil {
			s.failed("notifications", err)
		}
		notifications = out
		return nil
	})
	_ = g.Wait()

	enrolled := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		if e.Course.ID != "" {
			enrolled = append(enrolled, e.Course.ID)
		}
	}
	byCourse := v.loadAssignments(ctx, enrolled, s)

	v.mu.Lock()
	if !v.gen.current(gen) {
		v.mu.Unlock()
		metrics.StaleRefreshes.Inc()
		return s.err()
	}
	v.courses = orEmpty(courses)
	v.enrolled = enrolled
	v.assignments = byCourse
	v.messages = orEmpty(messages)
	v.notifications = orEmpty(notifications)
	feed := v.deriveLocked()
	v.mu.Unlock()

	v.notify(ctx, feed)
	return s.err()
}

// loadAssignments reads the assignments of every course in parallel and joins
// them by course id. A failed course keeps an empty list.
func (v *StudentView) loadAssignments(ctx context.Context, courseIDs []string, s *slice) map[string][]model.Assignment {
	var mu sync.Mutex
	out := make(map[string][]model.Assignment, len(courseIDs))
	var g errgroup.Group
	g.SetLimit(maxCourseFetches)
	for _, id := range courseIDs {
		id := id
		g.Go(func() error {
			list, err := v.deps.API.Assignments(ctx, v.token, id)
			if err != nil {
				s.failed("assignments", err)
			}
			mu.Lock()
			out[id] = orEmpty(list)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// deriveLocked recomputes pending, upcoming and the feed from the loaded slices.
func (v *StudentView) deriveLocked() []model.Notification {
	all := v.assignmentsLocked()
	v.pending = Pending(all, v.user.ID)
	v.upcoming = Upcoming(v.pending, v.deps.now())
	v.feed = Feed(v.notifications, v.upcoming)
	return append([]model.Notification(nil), v.feed...)
}

func (v *StudentView) assignmentsLocked() []model.Assignment {
	all := []model.Assignment{}
	for _, id := range v.enrolled {
		all = append(all, v.assignments[id]...)
	}
	return all
}

func (v *StudentView) notify(ctx context.Context, feed []model.Notification) {
	if len(feed) == 0 || v.deps.Notifier == nil {
		return
	}
	v.deps.Notifier.Notify(ctx, v.token, v.user.User, feed)
}

// IsEnrolled reports whether courseID is in the local enrolled set.
func (v *StudentView) IsEnrolled(courseID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isEnrolledLocked(courseID)
}

func (v *StudentView) isEnrolledLocked(courseID string) bool {
	for _, id := range v.enrolled {
		if id == courseID {
			return true
		}
	}
	return false
}

// Enroll joins courseID. The local set changes only once the server agrees,
// and a refresh started before that no longer applies.
func (v *StudentView) Enroll(ctx context.Context, courseID string) error {
	if err := v.deps.API.Enroll(ctx, v.token, courseID); err != nil {
		v.log.Errorf("dashboard: enroll in %s: %w", courseID, err)
		return err
	}
	v.mu.Lock()
	v.gen.next()
	if !v.isEnrolledLocked(courseID) {
		v.enrolled = append(v.enrolled, courseID)
	}
	feed := v.deriveLocked()
	v.mu.Unlock()

	v.notify(ctx, feed)
	return nil
}

// Unenroll leaves courseID. The local set changes only once the server agrees,
// and a refresh started before that no longer applies.
func (v *StudentView) Unenroll(ctx context.Context, courseID string) error {
	if err := v.deps.API.Unenroll(ctx, v.token, courseID); err != nil {
		v.log.Errorf("dashboard: unenroll from %s: %w", courseID, err)
		return err
	}
	v.mu.Lock()
	v.gen.next()
	kept := v.enrolled[:0:0]
	for _, id := range v.enrolled {
		if id != courseID {
			kept = append(kept, id)
		}
	}
	v.enrolled = kept
	delete(v.assignments, courseID)
	feed := v.deriveLocked()
	v.mu.Unlock()

	v.notify(ctx, feed)
	return nil
}

// Submit hands in an assignment, then reloads the assignments of every
// enrolled course to pick up the server's submission state.
func (v *StudentView) Submit(ctx context.Context, assignmentID string, in lmsapi.SubmissionInput) error {
	hasFile := in.File != nil && in.File.Content != nil
	if !hasFile && strings.TrimSpace(in.Text) == "" {
		return ErrEmptySubmission
	}
	if err := v.deps.API.Submit(ctx, v.token, assignmentID, in); err != nil {
		v.log.Errorf("dashboard: submit %s: %w", assignmentID, err)
		return err
	}

	gen := v.gen.next()
	v.mu.Lock()
	enrolled := append([]string(nil), v.enrolled...)
	v.mu.Unlock()

	s := &slice{log: v.log}
	byCourse := v.loadAssignments(ctx, enrolled, s)

	v.mu.Lock()
	if !v.gen.current(gen) {
		v.mu.Unlock()
		metrics.StaleRefreshes.Inc()
		return s.err()
	}
	v.assignments = byCourse
	feed := v.deriveLocked()
	v.mu.Unlock()

	v.notify(ctx, feed)
	return s.err()
}

// Feed returns the merged notification feed.
func (v *StudentView) Feed() []model.Notification {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.Notification{}, v.feed...)
}

// State returns a copy of what the dashboard shows.
func (v *StudentView) State() StudentState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return StudentState{
		Courses:       append([]model.Course{}, v.courses...),
		Enrolled:      append([]string{}, v.enrolled...),
		Assignments:   v.assignmentsLocked(),
		Pending:       append([]model.Assignment{}, v.pending...),
		Upcoming:      append([]model.Assignment{}, v.upcoming...),
		Messages:      append([]model.Notification{}, v.messages...),
		Notifications: append([]model.Notification{}, v.notifications...),
		Feed:          append([]model.Notification{}, v.feed...),
	}
}
