// Package lmsapitest runs an in-memory stand-in for the remote LMS API.
package lmsapitest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"lmsportal/internal/auth"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/model"
)

const signingKey = "lmsapitest-secret"

type account struct {
	model.User
	password string
}

// Server is a fake LMS API. All state lives in memory and every request is
// appended to the call log as "METHOD /path?query".
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	users         map[string]*account
	tokens        map[string]string
	courses       []model.Course
	enrolled      map[string]map[string]bool
	assignments   []model.Assignment
	submissions   []model.Submission
	notifications map[string][]model.Notification
	messages      map[string][]model.Notification
	digests       []lmsapi.DigestRequest
	calls         []string
	failures      map[string]int
	hooks         map[string]func()
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		users:         make(map[string]*account),
		tokens:        make(map[string]string),
		enrolled:      make(map[string]map[string]bool),
		notifications: make(map[string][]model.Notification),
		messages:      make(map[string][]model.Notification),
		failures:      make(map[string]int),
		hooks:         make(map[string]func()),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client returns a gateway client pointed at the fake.
func (s *Server) Client() *lmsapi.Client {
	return lmsapi.New(s.URL, 5*time.Second)
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(s.record)

	r.POST("/auth/login", s.login)
	r.POST("/auth/register", s.register)

	a := r.Group("", s.authenticate)
	a.GET("/auth/me", s.me)
	a.PUT("/auth/update", s.updateProfile)
	a.GET("/courses", s.listCourses)
	a.POST("/courses", s.createCourse)
	a.GET("/courses/:id/students", s.courseStudents)
	a.GET("/enrollments/me", s.myEnrollments)
	a.POST("/enrollments/:id/enroll", s.enroll)
	a.POST("/enrollments/:id/unenroll", s.unenroll)
	a.GET("/assignments/:id", s.listAssignments)
	a.POST("/assignments/:id", s.createAssignment)
	a.GET("/submissions/:id", s.listSubmissions)
	a.POST("/submissions/*rest", s.submissionAction)
	a.GET("/messages/:id", s.listMessages)
	a.GET("/notifications/:id", s.listNotifications)
	a.POST("/notifications/send-email", s.sendEmail)
	return r
}

func callKey(r *http.Request) string {
	key := r.Method + " " + r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

func (s *Server) record(c *gin.Context) {
	key := callKey(c.Request)
	s.mu.Lock()
	s.calls = append(s.calls, key)
	status := s.failures[key]
	hook := s.hooks[key]
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"message": "injected failure"})
		return
	}
	c.Next()
}

func (s *Server) authenticate(c *gin.Context) {
	authz := c.GetHeader("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token provided"})
		return
	}
	s.mu.Lock()
	uid, ok := s.tokens[strings.TrimPrefix(authz, "Bearer ")]
	var acc *account
	if ok {
		acc = s.users[uid]
	}
	s.mu.Unlock()
	if acc == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
		return
	}
	c.Set("user", acc.User)
	c.Next()
}

func current(c *gin.Context) model.User {
	u, _ := c.MustGet("user").(model.User)
	return u
}

// AddUser registers an account directly.
func (s *Server) AddUser(name, email, password, role string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(name, email, password, role)
}

func (s *Server) addUserLocked(name, email, password, role string) model.User {
	u := model.User{ID: uuid.NewString(), Name: name, Email: email, Role: role}
	s.users[u.ID] = &account{User: u, password: password}
	return u
}

// TokenFor issues a valid credential for userID.
func (s *Server) TokenFor(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(s.users[userID].User)
}

func (s *Server) issueLocked(u model.User) string {
	claims := auth.Claims{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		panic(err)
	}
	s.tokens[tok] = u.ID
	return tok
}

// Revoke makes token answer 401 from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// AddCourse creates a course owned by teacherID.
func (s *Server) AddCourse(teacherID, title, description string) model.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCourseLocked(teacherID, title, description)
}

func (s *Server) addCourseLocked(teacherID, title, description string) model.Course {
	c := model.Course{ID: uuid.NewString(), Title: title, Description: description, Teacher: model.Ref{ID: teacherID}}
	s.courses = append(s.courses, c)
	return c
}

// EnrollStudent enrolls studentID in courseID.
func (s *Server) EnrollStudent(studentID, courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollLocked(studentID, courseID)
}

func (s *Server) enrollLocked(studentID, courseID string) {
	set, ok := s.enrolled[studentID]
	if !ok {
		set = make(map[string]bool)
		s.enrolled[studentID] = set
	}
	set[courseID] = true
}

// AddAssignment creates an assignment in courseID.
func (s *Server) AddAssignment(courseID, title string, due time.Time) model.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAssignmentLocked(courseID, title, "", due)
}

func (s *Server) addAssignmentLocked(courseID, title, description string, due time.Time) model.Assignment {
	a := model.Assignment{
		ID:          uuid.NewString(),
		Course:      model.Ref{ID: courseID},
		Title:       title,
		Description: description,
		DueDate:     due.UTC().Truncate(time.Second),
	}
	s.assignments = append(s.assignments, a)
	return a
}

// AddSubmission records a submission by studentID.
func (s *Server) AddSubmission(assignmentID, studentID, text string) model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertSubmissionLocked(assignmentID, studentID, text, "")
}

func (s *Server) upsertSubmissionLocked(assignmentID, studentID, text, fileURL string) model.Submission {
	student := model.Ref{ID: studentID}
	if acc, ok := s.users[studentID]; ok {
		student.Name = acc.Name
		student.Email = acc.Email
	}
	for i, sub := range s.submissions {
		if sub.Assignment.ID == assignmentID && sub.Student.ID == studentID {
			s.submissions[i].Text = text
			s.submissions[i].FileURL = fileURL
			s.submissions[i].Grade = nil
			s.submissions[i].SubmittedAt = time.Now().UTC().Truncate(time.Second)
			return s.submissions[i]
		}
	}
	sub := model.Submission{
		ID:          uuid.NewString(),
		Assignment:  model.Ref{ID: assignmentID},
		Student:     student,
		Text:        text,
		FileURL:     fileURL,
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.submissions = append(s.submissions, sub)
	return sub
}

// AddNotification adds a server notification for userID.
func (s *Server) AddNotification(userID string, n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.notifications[userID] = append(s.notifications[userID], n)
}

// AddMessage adds a direct message for userID.
func (s *Server) AddMessage(userID string, n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.messages[userID] = append(s.messages[userID], n)
}

// Fail makes every request matching "METHOD /path" answer status until cleared with status 0.
func (s *Server) Fail(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = status
}

// OnCall runs fn before handling each request matching key.
func (s *Server) OnCall(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, key)
		return
	}
	s.hooks[key] = fn
}

// Calls returns the call log.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ResetCalls empties the call log.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// Digests returns the email digest requests received so far.
func (s *Server) Digests() []lmsapi.DigestRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lmsapi.DigestRequest(nil), s.digests...)
}

// Submission returns the stored submission with id.
func (s *Server) Submission(id string) (model.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.submissions {
		if sub.ID == id {
			return sub, true
		}
	}
	return model.Submission{}, false
}
