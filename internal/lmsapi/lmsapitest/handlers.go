package lmsapitest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lmsportal/internal/lmsapi"
	"lmsportal/internal/model"
)

func (s *Server) login(c *gin.Context) {
	var in lmsapi.Credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.users {
		if strings.EqualFold(acc.Email, in.Email) && acc.password == in.Password {
			u := acc.User
			c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": s.issueLocked(u), "user": u})
			return
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
}

func (s *Server) register(c *gin.Context) {
	var in lmsapi.Registration
	if err := c.ShouldBindJSON(&in); err != nil || in.Email == "" || in.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "All fields are required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.users {
		if strings.EqualFold(acc.Email, in.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
			return
		}
	}
	u := s.addUserLocked(in.Name, in.Email, in.Password, model.RoleStudent)
	c.JSON(http.StatusCreated, gin.H{"message": "User registered", "token": s.issueLocked(u), "user": u})
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": current(c)})
}

func (s *Server) updateProfile(c *gin.Context) {
	var in lmsapi.ProfileUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.users[current(c).ID]
	if in.Name != "" {
		acc.Name = in.Name
	}
	if in.Email != "" {
		acc.Email = in.Email
	}
	if in.Password != "" {
		acc.password = in.Password
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": acc.User})
}

func (s *Server) listCourses(c *gin.Context) {
	teacher := c.Query("teacher")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Course{}
	for _, course := range s.courses {
		if teacher == "" || course.Teacher.ID == teacher {
			out = append(out, course)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createCourse(c *gin.Context) {
	u := current(c)
	if u.Role != model.RoleTeacher {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only teachers can create courses"})
		return
	}
	var in lmsapi.NewCourse
	if err := c.ShouldBindJSON(&in); err != nil || in.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title is required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusCreated, s.addCourseLocked(u.ID, in.Title, in.Description))
}

func (s *Server) courseStudents(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.User{}
	for sid, set := range s.enrolled {
		if set[id] {
			if acc, ok := s.users[sid]; ok {
				out = append(out, acc.User)
			}
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) myEnrollments(c *gin.Context) {
	u := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Enrollment{}
	for _, course := range s.courses {
		if s.enrolled[u.ID][course.ID] {
			out = append(out, model.Enrollment{
				ID:      u.ID + ":" + course.ID,
				Course:  model.Ref{ID: course.ID, Title: course.Title},
				Student: model.Ref{ID: u.ID},
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) courseExistsLocked(id string) bool {
	for _, course := range s.courses {
		if course.ID == id {
			return true
		}
	}
	return false
}

func (s *Server) enroll(c *gin.Context) {
	u := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.courseExistsLocked(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Course not found"})
		return
	}
	if s.enrolled[u.ID][c.Param("id")] {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Already enrolled"})
		return
	}
	s.enrollLocked(u.ID, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "Enrolled"})
}

func (s *Server) unenroll(c *gin.Context) {
	u := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enrolled[u.ID][c.Param("id")] {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Not enrolled"})
		return
	}
	delete(s.enrolled[u.ID], c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "Unenrolled"})
}

func (s *Server) submissionsForLocked(assignmentID string) []model.Submission {
	out := []model.Submission{}
	for _, sub := range s.submissions {
		if sub.Assignment.ID == assignmentID {
			out = append(out, sub)
		}
	}
	return out
}

func (s *Server) listAssignments(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Assignment{}
	for _, a := range s.assignments {
		if a.Course.ID == id {
			a.Submissions = s.submissionsForLocked(a.ID)
			out = append(out, a)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createAssignment(c *gin.Context) {
	if current(c).Role != model.RoleTeacher {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only teachers can create assignments"})
		return
	}
	var in lmsapi.NewAssignment
	if err := c.ShouldBindJSON(&in); err != nil || in.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title and due date are required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.courseExistsLocked(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Course not found"})
		return
	}
	c.JSON(http.StatusCreated, s.addAssignmentLocked(c.Param("id"), in.Title, in.Description, in.DueDate))
}

func (s *Server) listSubmissions(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.submissionsForLocked(c.Param("id")))
}

// submissionAction serves POST /submissions/:id/submit and POST /submissions/grade/:id.
func (s *Server) submissionAction(c *gin.Context) {
	parts := strings.Split(strings.Trim(c.Param("rest"), "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "grade":
		s.grade(c, parts[1])
	case len(parts) == 2 && parts[1] == "submit":
		s.submit(c, parts[0])
	default:
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	}
}

func (s *Server) submit(c *gin.Context, assignmentID string) {
	u := current(c)
	if u.Role != model.RoleStudent {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only students can submit"})
		return
	}
	text := c.PostForm("text")
	fileURL := ""
	if fh, err := c.FormFile("file"); err == nil {
		fileURL = "/uploads/" + fh.Filename
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, a := range s.assignments {
		if a.ID == assignmentID {
			found = true
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "Assignment not found"})
		return
	}
	c.JSON(http.StatusCreated, s.upsertSubmissionLocked(assignmentID, u.ID, text, fileURL))
}

func (s *Server) grade(c *gin.Context, submissionID string) {
	if current(c).Role != model.RoleTeacher {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only teachers can grade"})
		return
	}
	var in struct {
		Grade string `json:"grade"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Grade == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Grade is required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.submissions {
		if sub.ID == submissionID {
			g := model.Grade(in.Grade)
			s.submissions[i].Grade = &g
			c.JSON(http.StatusOK, s.submissions[i])
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Submission not found"})
}

func (s *Server) listMessages(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Notification{}, s.messages[c.Param("id")]...)
	c.JSON(http.StatusOK, out)
}

func (s *Server) listNotifications(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Notification{}, s.notifications[c.Param("id")]...)
	c.JSON(http.StatusOK, out)
}

func (s *Server) sendEmail(c *gin.Context) {
	var in lmsapi.DigestRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	s.mu.Lock()
	s.digests = append(s.digests, in)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Email sent", "sentAt": time.Now().UTC()})
}
