package dashboard_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsportal/internal/dashboard"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/lmsapi/lmsapitest"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/metrics"
	"lmsportal/internal/model"
)

type recorder struct {
	mu    sync.Mutex
	feeds [][]model.Notification
}

func (r *recorder) Notify(_ context.Context, _ string, _ model.User, feed []model.Notification) {
	r.mu.Lock()
	r.feeds = append(r.feeds, feed)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}

type fixture struct {
	srv     *lmsapitest.Server
	now     time.Time
	notes   *recorder
	teacher model.User
	student model.User
}

func newFixture(t *testing.T) *fixture {
	srv := lmsapitest.New(t)
	return &fixture{
		srv:     srv,
		now:     time.Now().UTC(),
		notes:   &recorder{},
		teacher: srv.AddUser("Tess", "tess@example.com", "pw", model.RoleTeacher),
		student: srv.AddUser("Sam", "sam@example.com", "pw", model.RoleStudent),
	}
}

func (f *fixture) deps(api dashboard.API) dashboard.Deps {
	if api == nil {
		api = f.srv.Client()
	}
	return dashboard.Deps{API: api, Notifier: f.notes, Log: logsvc.Discard(), Now: func() time.Time { return f.now }}
}

func (f *fixture) studentView() *dashboard.StudentView {
	v := dashboard.For(f.deps(nil), f.srv.TokenFor(f.student.ID), f.student)
	return v.(*dashboard.StudentView)
}

func (f *fixture) teacherView() *dashboard.TeacherView {
	v := dashboard.For(f.deps(nil), f.srv.TokenFor(f.teacher.ID), f.teacher)
	return v.(*dashboard.TeacherView)
}

func TestForDispatchesOnRole(t *testing.T) {
	f := newFixture(t)
	assert.IsType(t, &dashboard.StudentView{}, dashboard.For(f.deps(nil), "tk", f.student))
	assert.IsType(t, &dashboard.TeacherView{}, dashboard.For(f.deps(nil), "tk", f.teacher))
	assert.IsType(t, &dashboard.StudentView{}, dashboard.For(f.deps(nil), "tk", model.User{ID: "x"}))
}

func TestStudentRefreshSingleUpcoming(t *testing.T) {
	f := newFixture(t)
	c1 := f.srv.AddCourse(f.teacher.ID, "Math", "")
	c2 := f.srv.AddCourse(f.teacher.ID, "History", "")
	f.srv.AddCourse(f.teacher.ID, "Art", "")
	f.srv.EnrollStudent(f.student.ID, c1.ID)
	f.srv.EnrollStudent(f.student.ID, c2.ID)
	due := f.srv.AddAssignment(c1.ID, "Algebra HW", f.now.Add(48*time.Hour))
	f.srv.AddAssignment(c2.ID, "Essay", f.now.Add(10*24*time.Hour))

	v := f.studentView()
	require.NoError(t, v.Refresh(context.Background()))

	st := v.State()
	assert.Len(t, st.Courses, 3)
	assert.ElementsMatch(t, []string{c1.ID, c2.ID}, st.Enrolled)
	assert.Len(t, st.Pending, 2)
	require.Len(t, st.Upcoming, 1)
	assert.Equal(t, due.ID, st.Upcoming[0].ID)

	var deadlines []model.Notification
	for _, n := range st.Feed {
		if n.Type == model.NotificationDeadline {
			deadlines = append(deadlines, n)
		}
	}
	require.Len(t, deadlines, 1)
	assert.Equal(t, due.ID, deadlines[0].ID)
	assert.Contains(t, deadlines[0].Message, "Algebra HW")
	assert.Contains(t, deadlines[0].Message, due.DueDate.Format("Jan 2, 2006"))
	assert.Equal(t, 1, f.notes.count())
}

func TestStudentRefreshEmptyFeedSkipsNotifier(t *testing.T) {
	f := newFixture(t)
	c := f.srv.AddCourse(f.teacher.ID, "Math", "")
	f.srv.EnrollStudent(f.student.ID, c.ID)
	f.srv.AddAssignment(c.ID, "Later", f.now.Add(30*24*time.Hour))

	v := f.studentView()
	require.NoError(t, v.Refresh(context.Background()))
	assert.Empty(t, v.Feed())
	assert.Zero(t, f.notes.count())
}

func TestStudentRefreshMergesServerNotifications(t *testing.T) {
	f := newFixture(t)
	c := f.srv.AddCourse(f.teacher.ID, "Math", "")
	f.srv.EnrollStudent(f.student.ID, c.ID)
	f.srv.AddAssignment(c.ID, "Quiz", f.now.Add(-time.Hour))
	f.srv.AddNotification(f.student.ID, model.Notification{Title: "Graded", Message: "HW1 graded"})
	f.srv.AddMessage(f.student.ID, model.Notification{Title: "Hi", Message: "from Tess"})

	v := f.studentView()
	require.NoError(t, v.Refresh(context.Background()))

	feed := v.Feed()
	require.Len(t, feed, 2)
	assert.Equal(t, "Graded", feed[0].Title)
	assert.Equal(t, dashboard.DeadlineTitle, feed[1].Title)
	assert.Len(t, v.State().Messages, 1)
}

func TestStudentSliceFailureDegrades(t *testing.T) {
	f := newFixture(t)
	c := f.srv.AddCourse(f.teacher.ID, "Math", "")
	f.srv.EnrollStudent(f.student.ID, c.ID)
	f.srv.AddAssignment(c.ID, "Quiz", f.now.Add(time.Hour))
	f.srv.Fail("GET /courses", http.StatusInternalServerError)
	f.srv.Fail("GET /assignments/"+c.ID, http.StatusBadGateway)

	before := testutil.ToFloat64(metrics.SliceFailures.WithLabelValues("courses"))
	v := f.studentView()
	require.NoError(t, v.Refresh(context.Background()))

	st := v.State()
	assert.NotNil(t, st.Courses)
	assert.Empty(t, st.Courses)
	assert.Equal(t, []string{c.ID}, st.Enrolled)
	assert.Empty(t, st.Assignments)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SliceFailures.WithLabelValues("courses")))
}

func TestStudentRefreshRejectedCredential(t *testing.T) {
	f := newFixture(t)
	tok := f.srv.TokenFor(f.student.ID)
	f.srv.Revoke(tok)

	v := dashboard.NewStudentView(f.deps(nil), tok, model.Student{User: f.student})
	assert.ErrorIs(t, v.Refresh(context.Background()), lmsapi.ErrUnauthorized)
}

func TestEnrollRoundTrip(t *testing.T) {
	f := newFixture(t)
	c1 := f.srv.AddCourse(f.teacher.ID, "Math", "")
	c2 := f.srv.AddCourse(f.teacher.ID, "History", "")
	f.srv.EnrollStudent(f.student.ID, c1.ID)
	ctx := context.Background()

	v := f.studentView()
	require.NoError(t, v.Refresh(ctx))
	before := v.State().Enrolled

	require.NoError(t, v.Enroll(ctx, c2.ID))
	assert.True(t, v.IsEnrolled(c2.ID))
	require.NoError(t, v.Unenroll(ctx, c2.ID))

	assert.Equal(t, before, v.State().Enrolled)
	assert.False(t, v.IsEnrolled(c2.ID))
}

func TestEnrollFailureLeavesSetAlone(t *testing.T) {
	f := newFixture(t)
	c := f.srv.AddCourse(f.teacher.ID, "Math", "")
	f.srv.EnrollStudent(f.student.ID, c.ID)
	ctx := context.Background()

	v := f.studentView()
	require.NoError(t, v.Refresh(ctx))

	err := v.Enroll(ctx, c.ID)
	require.Error(t, err)
	assert.Equal(t, "Already enrolled", lmsapi.Message(err, ""))

	err = v.Enroll(ctx, "missing")
	require.Error(t, err)
	assert.False(t, v.IsEnrolled("missing"))
	assert.Equal(t, []string{c.ID}, v.State().Enrolled)
}

func TestSubmitRequiresContent(t *testing.T) {
	f := newFixture(t)
	v := f.studentView()
	f.srv.ResetCalls()

	err := v.Submit(context.Background(), "a1", lmsapi.SubmissionInput{Text: "   "})
	assert.ErrorIs(t, err, dashboard.ErrEmptySubmission)
	assert.Empty(t, f.srv.Calls())
}

func TestSubmitRefetchesAssignments(t *testing.T) {
	f := newFixture(t)
	c := f.srv.AddCourse(f.teacher.ID, "Math", "")
	f.srv.EnrollStudent(f.student.ID, c.ID)
	a := f.srv.AddAssignment(c.ID, "Quiz", f.now.Add(time.Hour))
	ctx := context.Background()

	v := f.studentView()
	require.NoError(t, v.Refresh(ctx))
	require.Len(t, v.State().Upcoming, 1)

	f.srv.ResetCalls()
	err := v.Submit(ctx, a.ID, lmsapi.SubmissionInput{
		File: &lmsapi.Upload{Name: "quiz.pdf", Content: strings.NewReader("%PDF")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"POST /submissions/" + a.ID + "/submit",
		"GET /assignments/" + c.ID,
	}, f.srv.Calls())

	st := v.State()
	assert.Empty(t, st.Pending)
	assert.Empty(t, st.Upcoming)
	require.Len(t, st.Assignments, 1)
	sub, ok := st.Assignments[0].SubmissionBy(f.student.ID)
	require.True(t, ok)
	assert.Equal(t, "/uploads/quiz.pdf", sub.FileURL)
}

// blockingAPI holds the first Notifications answer until released.
type blockingAPI struct {
	dashboard.API
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (b *blockingAPI) Notifications(ctx context.Context, token, userID string) ([]model.Notification, error) {
	out, err := b.API.Notifications(ctx, token, userID)
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.reached)
		<-b.release
	}
	return out, err
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	f := newFixture(t)
	api := &blockingAPI{API: f.srv.Client(), reached: make(chan struct{}), release: make(chan struct{})}
	v := dashboard.NewStudentView(f.deps(api), f.srv.TokenFor(f.student.ID), model.Student{User: f.student})
	ctx := context.Background()
	stale := testutil.ToFloat64(metrics.StaleRefreshes)

	done := make(chan error, 1)
	go func() { done <- v.Refresh(ctx) }()
	<-api.reached

	f.srv.AddNotification(f.student.ID, model.Notification{Title: "Fresh", Message: "new"})
	require.NoError(t, v.Refresh(ctx))
	close(api.release)
	require.NoError(t, <-done)

	feed := v.Feed()
	require.Len(t, feed, 1)
	assert.Equal(t, "Fresh", feed[0].Title)
	assert.Equal(t, stale+1, testutil.ToFloat64(metrics.StaleRefreshes))
}

// enrollmentsGate holds the first MyEnrollments answer until released.
type enrollmentsGate struct {
	dashboard.API
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (g *enrollmentsGate) MyEnrollments(ctx context.Context, token string) ([]model.Enrollment, error) {
	out, err := g.API.MyEnrollments(ctx, token)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.reached)
		<-g.release
	}
	return out, err
}

func TestEnrollDuringRefreshSurvives(t *testing.T) {
	tests := []struct {
		name       string
		preEnroll  bool
		change     func(v *dashboard.StudentView, ctx context.Context, courseID string) error
		wantMember bool
	}{
		{
			name:       "enroll",
			change:     (*dashboard.StudentView).Enroll,
			wantMember: true,
		},
		{
			name:      "unenroll",
			preEnroll: true,
			change:    (*dashboard.StudentView).Unenroll,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.srv.AddCourse(f.teacher.ID, "Math", "")
			if tt.preEnroll {
				f.srv.EnrollStudent(f.student.ID, c.ID)
			}
			api := &enrollmentsGate{API: f.srv.Client(), reached: make(chan struct{}), release: make(chan struct{})}
			v := dashboard.NewStudentView(f.deps(api), f.srv.TokenFor(f.student.ID), model.Student{User: f.student})
			ctx := context.Background()
			stale := testutil.ToFloat64(metrics.StaleRefreshes)

			done := make(chan error, 1)
			go func() { done <- v.Refresh(ctx) }()
			<-api.reached

			require.NoError(t, tt.change(v, ctx, c.ID))
			close(api.release)
			require.NoError(t, <-done)

			assert.Equal(t, tt.wantMember, v.IsEnrolled(c.ID))
			assert.Equal(t, stale+1, testutil.ToFloat64(metrics.StaleRefreshes))
		})
	}
}

func TestEnrollNotifiesWithFeed(t *testing.T) {
	f := newFixture(t)
	c1 := f.srv.AddCourse(f.teacher.ID, "Math", "")
	c2 := f.srv.AddCourse(f.teacher.ID, "History", "")
	f.srv.EnrollStudent(f.student.ID, c1.ID)
	f.srv.AddAssignment(c1.ID, "Algebra HW", f.now.Add(48*time.Hour))
	ctx := context.Background()

	v := f.studentView()
	require.NoError(t, v.Refresh(ctx))
	require.Equal(t, 1, f.notes.count())

	require.NoError(t, v.Enroll(ctx, c2.ID))
	assert.Equal(t, 2, f.notes.count())

	// leaving the course with the deadline empties the feed
	require.NoError(t, v.Unenroll(ctx, c1.ID))
	assert.Empty(t, v.Feed())
	assert.Equal(t, 2, f.notes.count())
}
