package portal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lmsportal/internal/auth"
	"lmsportal/internal/dashboard"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/model"
)

type loginForm struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type signupForm struct {
	Name     string `form:"name" json:"name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type profileForm struct {
	Name     string `form:"name" json:"name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (s *Server) loginForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": "login", "fields": []string{"email", "password"}, "signup": "/signup"})
}

func (s *Server) signupForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": "signup", "fields": []string{"name", "email", "password"}, "login": "/login"})
}

// authFailed answers a failed login or signup with the server's message, or
// fallback when there is none.
func (s *Server) authFailed(c *gin.Context, err error, fallback string) {
	status := http.StatusBadGateway
	var apiErr *lmsapi.APIError
	if errors.As(err, &apiErr) && !apiErr.IsServer() {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": lmsapi.Message(err, fallback)})
}

// signedIn stores the credential under a new browser session and redirects to
// the dashboard. Whatever the old session id held is cleared.
func (s *Server) signedIn(c *gin.Context, token string) {
	ctx := c.Request.Context()
	if old, err := c.Cookie(SessionCookie); err == nil && old != "" {
		if err := s.opts.Sessions(old).Clear(ctx); err != nil {
			s.log.Printf("portal: clear previous session: %v", err)
		}
		s.views.drop(old)
	}
	sid := s.newSession(c)
	if err := s.opts.Sessions(sid).Set(ctx, token); err != nil {
		s.log.Errorf("portal: store credential: %w", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

func (s *Server) login(c *gin.Context) {
	var in loginForm
	if err := c.ShouldBind(&in); err != nil || in.Email == "" || in.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	res, err := s.opts.API.Login(c.Request.Context(), lmsapi.Credentials{Email: in.Email, Password: in.Password})
	if err != nil {
		s.log.Printf("portal: login failed for %s: %v", in.Email, err)
		s.authFailed(c, err, "Login failed")
		return
	}
	if res.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": firstNonEmpty(res.Message, "Login failed")})
		return
	}
	s.signedIn(c, res.Token)
}

func (s *Server) signup(c *gin.Context) {
	var in signupForm
	if err := c.ShouldBind(&in); err != nil || in.Name == "" || in.Email == "" || in.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name, email and password are required"})
		return
	}
	res, err := s.opts.API.Register(c.Request.Context(), lmsapi.Registration{Name: in.Name, Email: in.Email, Password: in.Password})
	if err != nil {
		s.log.Printf("portal: signup failed for %s: %v", in.Email, err)
		s.authFailed(c, err, "Signup failed")
		return
	}
	if res.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": firstNonEmpty(res.Message, "Signup failed")})
		return
	}
	s.signedIn(c, res.Token)
}

func (s *Server) logout(c *gin.Context) {
	s.views.drop(s.sessionID(c))
	auth.Logout(c, s.storeFor(c))
}

func (s *Server) profile(c *gin.Context) {
	user, err := s.opts.API.Me(c.Request.Context(), auth.Credential(c))
	if err != nil {
		s.fail(c, err, "Could not load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": "profile", "user": user})
}

func (s *Server) updateProfile(c *gin.Context) {
	var in profileForm
	if err := c.ShouldBind(&in); err != nil || in.Name == "" || in.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and email are required"})
		return
	}
	user, err := s.opts.API.UpdateProfile(c.Request.Context(), auth.Credential(c), lmsapi.ProfileUpdate{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		s.fail(c, err, "Profile update failed")
		return
	}
	s.views.drop(s.sessionID(c))
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}

func (s *Server) dashboard(c *gin.Context) {
	v, ok := s.view(c)
	if !ok {
		return
	}
	if err := v.Refresh(c.Request.Context()); err != nil {
		s.fail(c, err, "Could not load dashboard")
		return
	}
	switch v := v.(type) {
	case *dashboard.StudentView:
		c.JSON(http.StatusOK, gin.H{"role": model.RoleStudent, "user": v.Account(), "student": v.State()})
	case *dashboard.TeacherView:
		c.JSON(http.StatusOK, gin.H{"role": model.RoleTeacher, "user": v.Account(), "teacher": v.State()})
	}
}

func (s *Server) enroll(c *gin.Context) {
	v, ok := s.studentView(c)
	if !ok {
		return
	}
	if err := v.Enroll(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Enrollment failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrolled": v.State().Enrolled})
}

func (s *Server) unenroll(c *gin.Context) {
	v, ok := s.studentView(c)
	if !ok {
		return
	}
	if err := v.Unenroll(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Unenrollment failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrolled": v.State().Enrolled})
}

func (s *Server) submit(c *gin.Context) {
	v, ok := s.studentView(c)
	if !ok {
		return
	}
	in := lmsapi.SubmissionInput{Text: c.PostForm("text")}
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}
		defer f.Close()
		in.File = &lmsapi.Upload{Name: fh.Filename, Content: f}
	}
	if err := v.Submit(c.Request.Context(), c.Param("id"), in); err != nil {
		s.fail(c, err, "Submission failed")
		return
	}
	st := v.State()
	c.JSON(http.StatusCreated, gin.H{"message": "Submitted", "assignments": st.Assignments, "pending": st.Pending})
}

func (s *Server) digests(c *gin.Context) {
	v, ok := s.studentView(c)
	if !ok {
		return
	}
	if s.opts.Ledger == nil {
		c.JSON(http.StatusOK, gin.H{"digests": []any{}})
		return
	}
	list, err := s.opts.Ledger.List(c.Request.Context(), v.Account().ID, 20)
	if err != nil {
		s.log.Errorf("portal: list digests: %w", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list digests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"digests": list})
}

func (s *Server) createCourse(c *gin.Context) {
	v, ok := s.teacherView(c)
	if !ok {
		return
	}
	var in struct {
		Title       string `form:"title" json:"title"`
		Description string `form:"description" json:"description"`
	}
	if err := c.ShouldBind(&in); err != nil || in.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	course, err := v.CreateCourse(c.Request.Context(), in.Title, in.Description)
	if err != nil {
		s.fail(c, err, "Course creation failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course": course})
}

func (s *Server) courseStudents(c *gin.Context) {
	v, ok := s.teacherView(c)
	if !ok {
		return
	}
	if err := v.ViewStudents(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Could not load students")
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": v.State().Students})
}

func (s *Server) courseAssignments(c *gin.Context) {
	v, ok := s.teacherView(c)
	if !ok {
		return
	}
	if err := v.ViewAssignments(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Could not load assignments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": v.State().Assignments})
}

func (s *Server) createAssignment(c *gin.Context) {
	v, ok := s.teacherView(c)
	if !ok {
		return
	}
	var in struct {
		Title       string    `form:"title" json:"title"`
		Description string    `form:"description" json:"description"`
		DueDate     time.Time `form:"dueDate" json:"dueDate" time_format:"2006-01-02T15:04:05Z07:00"`
	}
	if err := c.ShouldBind(&in); err != nil || in.Title == "" || in.DueDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and dueDate are required"})
		return
	}
	v.Select(c.Param("id"), "")
	a, err := v.CreateAssignment(c.Request.Context(), in.Title, in.Description, in.DueDate)
	if err != nil {
		s.fail(c, err, "Assignment creation failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assignment": a})
}

func (s *Server) submissions(c *gin.Context) {
	v, ok := s.teacherView(c)
	if !ok {
		return
	}
	subs, err := v.ViewSubmissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Could not load submissions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (s *Server) grade(c *gin.Context) {
	v, ok := s.teacherView(c)
	if !ok {
		return
	}
	var in struct {
		Grade      string `form:"grade" json:"grade"`
		Course     string `form:"course" json:"course"`
		Assignment string `form:"assignment" json:"assignment"`
	}
	if err := c.ShouldBind(&in); err != nil || in.Grade == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "grade is required"})
		return
	}
	if in.Course != "" && in.Assignment != "" {
		v.Select(in.Course, in.Assignment)
	}
	if err := v.Grade(c.Request.Context(), c.Param("id"), in.Grade); err != nil {
		s.fail(c, err, "Grading failed")
		return
	}
	st := v.State()
	c.JSON(http.StatusOK, gin.H{"assignments": st.Assignments, "submissions": st.Submissions})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
