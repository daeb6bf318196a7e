package model

import (
	"bytes"
	"encoding/json"
	"regexp"
	"time"
)

// Role names as the LMS API sends them.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// NotificationDeadline marks notifications synthesized by the client for assignments due soon.
const NotificationDeadline = "deadline"

// User is the authenticated account as returned by /auth/me.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Kind is the role-tagged view of a user. It is either Student or Teacher.
type Kind interface {
	Account() User
}

// Student is a user with the student role.
type Student struct{ User }

// Teacher is a user with the teacher role.
type Teacher struct{ User }

func (s Student) Account() User { return s.User }
func (t Teacher) Account() User { return t.User }

// Kind returns the role variant. Anything that is not a teacher is treated as a student.
func (u User) Kind() Kind {
	if u.Role == RoleTeacher {
		return Teacher{u}
	}
	return Student{u}
}

// Ref is a reference to another entity. The API sends either the bare id or
// the populated object, so both forms decode.
type Ref struct {
	ID    string `json:"_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Title string `json:"title,omitempty"`
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	}
	type plain Ref
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Ref(p)
	return nil
}

type Course struct {
	ID            string `json:"_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Teacher       Ref    `json:"teacher"`
	StudentsCount int    `json:"studentsCount,omitempty"`
}

type Enrollment struct {
	ID      string `json:"_id,omitempty"`
	Course  Ref    `json:"course"`
	Student Ref    `json:"student"`
}

type Assignment struct {
	ID               string       `json:"_id"`
	Course           Ref          `json:"course"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	DueDate          time.Time    `json:"dueDate"`
	Submissions      []Submission `json:"submissions"`
	SubmissionsCount int          `json:"submissionsCount,omitempty"`
}

// SubmissionBy returns the submission made by userID, if any. At most one
// submission exists per student and assignment.
func (a Assignment) SubmissionBy(userID string) (Submission, bool) {
	for _, s := range a.Submissions {
		if s.Student.ID == userID {
			return s, true
		}
	}
	return Submission{}, false
}

type Submission struct {
	ID          string    `json:"_id"`
	Assignment  Ref       `json:"assignment"`
	Student     Ref       `json:"student"`
	FileURL     string    `json:"fileUrl,omitempty"`
	Text        string    `json:"text,omitempty"`
	Grade       *Grade    `json:"grade,omitempty"`
	SubmittedAt time.Time `json:"submittedAt,omitempty"`
}

// Graded reports whether a teacher has graded the submission.
func (s Submission) Graded() bool { return s.Grade != nil }

// Grade is a teacher-assigned mark. The API stores whatever the teacher typed,
// so it may arrive as a JSON number or a string.
type Grade string

func (g *Grade) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = Grade(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*g = Grade(n.String())
	return nil
}

// jsonNumber is the JSON number grammar. Values like "05", "+5" or "NaN"
// parse as floats but are not valid JSON, so they stay strings.
var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

func (g Grade) MarshalJSON() ([]byte, error) {
	if jsonNumber.MatchString(string(g)) {
		return []byte(g), nil
	}
	return json.Marshal(string(g))
}

func (g Grade) String() string { return string(g) }

// Notification is a server notification, a direct message, or a synthesized deadline reminder.
type Notification struct {
	ID      string `json:"_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// ChatMessage is an ephemeral chat line. It is never persisted.
type ChatMessage struct {
	User    string `json:"user"`
	Message string `json:"message"`
}
