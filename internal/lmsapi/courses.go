package lmsapi

import (
	"context"
	"net/http"
	"net/url"

	"lmsportal/internal/model"
)

// NewCourse is the course creation form.
type NewCourse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (c *Client) Courses(ctx context.Context, token string) ([]model.Course, error) {
	var out []model.Course
	err := c.doJSON(ctx, "courses.list", http.MethodGet, "/courses", token, nil, &out)
	return out, err
}

// TeacherCourses lists the courses owned by teacherID.
func (c *Client) TeacherCourses(ctx context.Context, token, teacherID string) ([]model.Course, error) {
	var out []model.Course
	path := "/courses?" + url.Values{"teacher": {teacherID}}.Encode()
	err := c.doJSON(ctx, "courses.by_teacher", http.MethodGet, path, token, nil, &out)
	return out, err
}

func (c *Client) CreateCourse(ctx context.Context, token string, in NewCourse) (model.Course, error) {
	var out model.Course
	err := c.doJSON(ctx, "courses.create", http.MethodPost, "/courses", token, in, &out)
	return out, err
}

// CourseStudents lists the students enrolled in courseID.
func (c *Client) CourseStudents(ctx context.Context, token, courseID string) ([]model.User, error) {
	var out []model.User
	err := c.doJSON(ctx, "courses.students", http.MethodGet, "/courses/"+seg(courseID)+"/students", token, nil, &out)
	return out, err
}

func (c *Client) MyEnrollments(ctx context.Context, token string) ([]model.Enrollment, error) {
	var out []model.Enrollment
	err := c.doJSON(ctx, "enrollments.mine", http.MethodGet, "/enrollments/me", token, nil, &out)
	return out, err
}

func (c *Client) Enroll(ctx context.Context, token, courseID string) error {
	return c.doJSON(ctx, "enrollments.enroll", http.MethodPost, "/enrollments/"+seg(courseID)+"/enroll", token, struct{}{}, nil)
}

func (c *Client) Unenroll(ctx context.Context, token, courseID string) error {
	return c.doJSON(ctx, "enrollments.unenroll", http.MethodPost, "/enrollments/"+seg(courseID)+"/unenroll", token, struct{}{}, nil)
}
