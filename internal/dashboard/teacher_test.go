package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsportal/internal/dashboard"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/model"
)

func TestTeacherRefreshCountsStudents(t *testing.T) {
	f := newFixture(t)
	other := f.srv.AddUser("Olga", "olga@example.com", "pw", model.RoleTeacher)
	mine := f.srv.AddCourse(f.teacher.ID, "Math", "numbers")
	f.srv.AddCourse(other.ID, "Art", "")
	empty := f.srv.AddCourse(f.teacher.ID, "Latin", "")
	f.srv.EnrollStudent(f.student.ID, mine.ID)
	s2 := f.srv.AddUser("Sue", "sue@example.com", "pw", model.RoleStudent)
	f.srv.EnrollStudent(s2.ID, mine.ID)

	v := f.teacherView()
	require.NoError(t, v.Refresh(context.Background()))

	counts := map[string]int{}
	for _, c := range v.State().Courses {
		counts[c.ID] = c.StudentsCount
	}
	assert.Equal(t, map[string]int{mine.ID: 2, empty.ID: 0}, counts)
}

func TestTeacherViews(t *testing.T) {
	f := newFixture(t)
	c := f.srv.AddCourse(f.teacher.ID, "Math", "")
	f.srv.EnrollStudent(f.student.ID, c.ID)
	a := f.srv.AddAssignment(c.ID, "HW1", f.now.Add(time.Hour))
	f.srv.AddSubmission(a.ID, f.student.ID, "42")
	ctx := context.Background()
	v := f.teacherView()

	require.NoError(t, v.ViewStudents(ctx, c.ID))
	st := v.State()
	assert.Equal(t, c.ID, st.SelectedCourse)
	require.Len(t, st.Students, 1)
	assert.Equal(t, "Sam", st.Students[0].Name)

	require.NoError(t, v.ViewAssignments(ctx, c.ID))
	st = v.State()
	require.Len(t, st.Assignments, 1)
	assert.Equal(t, 1, st.Assignments[0].SubmissionsCount)

	f.srv.ResetCalls()
	_, err := v.ViewSubmissions(ctx, a.ID)
	require.NoError(t, err)
	_, err = v.ViewSubmissions(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /submissions/" + a.ID, "GET /submissions/" + a.ID}, f.srv.Calls())
}

func TestCreateAssignmentNeedsCourse(t *testing.T) {
	f := newFixture(t)
	v := f.teacherView()
	_, err := v.CreateAssignment(context.Background(), "HW", "", time.Now())
	assert.ErrorIs(t, err, dashboard.ErrNoCourseSelected)
}

func TestGradeOrder(t *testing.T) {
	f := newFixture(t)
	c := f.srv.AddCourse(f.teacher.ID, "Math", "")
	a := f.srv.AddAssignment(c.ID, "HW1", f.now.Add(time.Hour))
	sub := f.srv.AddSubmission(a.ID, f.student.ID, "answer")
	ctx := context.Background()

	v := f.teacherView()
	require.NoError(t, v.ViewAssignments(ctx, c.ID))
	_, err := v.ViewSubmissions(ctx, a.ID)
	require.NoError(t, err)

	f.srv.ResetCalls()
	require.NoError(t, v.Grade(ctx, sub.ID, " 95 "))
	assert.Equal(t, []string{
		"POST /submissions/grade/" + sub.ID,
		"GET /assignments/" + c.ID,
		"GET /submissions/" + a.ID,
	}, f.srv.Calls())

	st := v.State()
	require.Len(t, st.Submissions, 1)
	require.NotNil(t, st.Submissions[0].Grade)
	assert.Equal(t, "95", st.Submissions[0].Grade.String())
}

func TestGradeNeedsSelection(t *testing.T) {
	f := newFixture(t)
	v := f.teacherView()
	ctx := context.Background()
	assert.ErrorIs(t, v.Grade(ctx, "s1", "A"), dashboard.ErrNoCourseSelected)
	v.Select("c1", "")
	assert.ErrorIs(t, v.Grade(ctx, "s1", "A"), dashboard.ErrNoAssignmentSelected)
}

func TestAuthorSubmitGradeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := f.teacherView()

	course, err := teacher.CreateCourse(ctx, "Biology", "cells")
	require.NoError(t, err)
	assert.Len(t, teacher.State().Courses, 1)

	teacher.Select(course.ID, "")
	a, err := teacher.CreateAssignment(ctx, "Lab report", "write it up", f.now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, teacher.State().Assignments, 1)

	student := f.studentView()
	require.NoError(t, student.Enroll(ctx, course.ID))
	require.NoError(t, student.Submit(ctx, a.ID, lmsapi.SubmissionInput{Text: "mitochondria"}))

	st := student.State()
	require.Len(t, st.Assignments, 1)
	sub, ok := st.Assignments[0].SubmissionBy(f.student.ID)
	require.True(t, ok)
	assert.Equal(t, "mitochondria", sub.Text)
	assert.Empty(t, sub.FileURL)
	assert.False(t, sub.Graded())

	require.NoError(t, teacher.ViewAssignments(ctx, course.ID))
	subs, err := teacher.ViewSubmissions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NoError(t, teacher.Grade(ctx, subs[0].ID, "A-"))

	require.NoError(t, student.Refresh(ctx))
	sub, ok = student.State().Assignments[0].SubmissionBy(f.student.ID)
	require.True(t, ok)
	require.True(t, sub.Graded())
	assert.Equal(t, "A-", sub.Grade.String())
}
