package dashboard

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/metrics"
	"lmsportal/internal/model"
)

// TeacherState is what the teacher dashboard renders.
type TeacherState struct {
	Courses            []model.Course     `json:"courses"`
	SelectedCourse     string             `json:"selectedCourse,omitempty"`
	Students           []model.User       `json:"students"`
	Assignments        []model.Assignment `json:"assignments"`
	SelectedAssignment string             `json:"selectedAssignment,omitempty"`
	Submissions        []model.Submission `json:"submissions"`
}

// TeacherView is the teacher dashboard of one session.
type TeacherView struct {
	deps  Deps
	log   *logsvc.Logger
	token string
	user  model.Teacher
	gen   generation

	mu                 sync.Mutex
	courses            []model.Course
	selectedCourse     string
	students           []model.User
	assignments        []model.Assignment
	selectedAssignment string
	submissions        []model.Submission
}

func NewTeacherView(d Deps, token string, user model.Teacher) *TeacherView {
	return &TeacherView{deps: d, log: d.Log, token: token, user: user}
}

func (v *TeacherView) Account() model.User { return v.user.User }

// Refresh reloads the owned courses and counts the students of each in parallel.
func (v *TeacherView) Refresh(ctx context.Context) error {
	gen := v.gen.next()
	s := &slice{log: v.log}

	courses, err := v.deps.API.TeacherCourses(ctx, v.token, v.user.ID)
	if err != nil {
		s.failed("courses", err)
	}
	courses = orEmpty(courses)

	var g errgroup.Group
	g.SetLimit(maxCourseFetches)
	for i := range courses {
		i := i
		g.Go(func() error {
			students, err := v.deps.API.CourseStudents(ctx, v.token, courses[i].ID)
			if err != nil {
				s.failed("students", err)
				return nil
			}
			courses[i].StudentsCount = len(students)
			return nil
		})
	}
	_ = g.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.gen.current(gen) {
		metrics.StaleRefreshes.Inc()
		return s.err()
	}
	v.courses = courses
	return s.err()
}

// Select points the view at a course and optionally one of its assignments
// without reading anything.
func (v *TeacherView) Select(courseID, assignmentID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selectedCourse = courseID
	v.selectedAssignment = assignmentID
}

// ViewStudents loads the students enrolled in courseID.
func (v *TeacherView) ViewStudents(ctx context.Context, courseID string) error {
	students, err := v.deps.API.CourseStudents(ctx, v.token, courseID)
	if err != nil {
		v.log.Errorf("dashboard: load students of %s: %w", courseID, err)
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selectedCourse = courseID
	v.students = orEmpty(students)
	return nil
}

// ViewAssignments loads the assignments of courseID with their submissions.
func (v *TeacherView) ViewAssignments(ctx context.Context, courseID string) error {
	list, err := v.loadAssignments(ctx, courseID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selectedCourse != courseID {
		v.selectedAssignment = ""
		v.submissions = nil
	}
	v.selectedCourse = courseID
	v.assignments = list
	return nil
}

func (v *TeacherView) loadAssignments(ctx context.Context, courseID string) ([]model.Assignment, error) {
	list, err := v.deps.API.Assignments(ctx, v.token, courseID)
	if err != nil {
		v.log.Errorf("dashboard: load assignments of %s: %w", courseID, err)
		return nil, err
	}
	list = orEmpty(list)
	for i := range list {
		if list[i].SubmissionsCount == 0 {
			list[i].SubmissionsCount = len(list[i].Submissions)
		}
	}
	return list, nil
}

// ViewSubmissions reads the submissions of assignmentID. The list is never cached.
func (v *TeacherView) ViewSubmissions(ctx context.Context, assignmentID string) ([]model.Submission, error) {
	subs, err := v.deps.API.Submissions(ctx, v.token, assignmentID)
	if err != nil {
		v.log.Errorf("dashboard: load submissions of %s: %w", assignmentID, err)
		return nil, err
	}
	subs = orEmpty(subs)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selectedAssignment = assignmentID
	v.submissions = subs
	return append([]model.Submission(nil), subs...), nil
}

// CreateCourse adds the server-confirmed course to the list.
func (v *TeacherView) CreateCourse(ctx context.Context, title, description string) (model.Course, error) {
	c, err := v.deps.API.CreateCourse(ctx, v.token, lmsapi.NewCourse{
		Title:       strings.TrimSpace(title),
		Description: description,
	})
	if err != nil {
		v.log.Errorf("dashboard: create course %q: %w", title, err)
		return model.Course{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.courses = append(v.courses, c)
	return c, nil
}

// CreateAssignment adds an assignment to the selected course once the server confirms it.
func (v *TeacherView) CreateAssignment(ctx context.Context, title, description string, due time.Time) (model.Assignment, error) {
	v.mu.Lock()
	courseID := v.selectedCourse
	v.mu.Unlock()
	if courseID == "" {
		return model.Assignment{}, ErrNoCourseSelected
	}

	a, err := v.deps.API.CreateAssignment(ctx, v.token, courseID, lmsapi.NewAssignment{
		Title:       strings.TrimSpace(title),
		Description: description,
		DueDate:     due,
	})
	if err != nil {
		v.log.Errorf("dashboard: create assignment %q in %s: %w", title, courseID, err)
		return model.Assignment{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selectedCourse == courseID {
		v.assignments = append(v.assignments, a)
	}
	return a, nil
}

// Grade posts a grade, then reloads the assignments of the selected course and
// after that the submissions of the selected assignment, in that order.
func (v *TeacherView) Grade(ctx context.Context, submissionID, value string) error {
	v.mu.Lock()
	courseID, assignmentID := v.selectedCourse, v.selectedAssignment
	v.mu.Unlock()
	if courseID == "" {
		return ErrNoCourseSelected
	}
	if assignmentID == "" {
		return ErrNoAssignmentSelected
	}

	if err := v.deps.API.Grade(ctx, v.token, submissionID, strings.TrimSpace(value)); err != nil {
		v.log.Errorf("dashboard: grade %s: %w", submissionID, err)
		return err
	}
	if err := v.ViewAssignments(ctx, courseID); err != nil {
		return err
	}
	_, err := v.ViewSubmissions(ctx, assignmentID)
	return err
}

// State returns a copy of what the dashboard shows.
func (v *TeacherView) State() TeacherState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return TeacherState{
		Courses:            append([]model.Course{}, v.courses...),
		SelectedCourse:     v.selectedCourse,
		Students:           append([]model.User{}, v.students...),
		Assignments:        append([]model.Assignment{}, v.assignments...),
		SelectedAssignment: v.selectedAssignment,
		Submissions:        append([]model.Submission{}, v.submissions...),
	}
}
