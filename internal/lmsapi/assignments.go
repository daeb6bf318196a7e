package lmsapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"lmsportal/internal/model"
)

// NewAssignment is the assignment creation form.
type NewAssignment struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
}

// Upload is an optional file attached to a submission.
type Upload struct {
	Name    string
	Content io.Reader
}

// SubmissionInput carries the optional file and optional text of a submission.
type SubmissionInput struct {
	File *Upload
	Text string
}

func (c *Client) Assignments(ctx context.Context, token, courseID string) ([]model.Assignment, error) {
	var out []model.Assignment
	err := c.doJSON(ctx, "assignments.list", http.MethodGet, "/assignments/"+seg(courseID), token, nil, &out)
	return out, err
}

func (c *Client) CreateAssignment(ctx context.Context, token, courseID string, in NewAssignment) (model.Assignment, error) {
	var out model.Assignment
	err := c.doJSON(ctx, "assignments.create", http.MethodPost, "/assignments/"+seg(courseID), token, in, &out)
	return out, err
}

// Submit posts a multipart submission. Only the parts that are present are sent.
func (c *Client) Submit(ctx context.Context, token, assignmentID string, in SubmissionInput) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if in.File != nil {
		fw, err := w.CreateFormFile("file", in.File.Name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, in.File.Content); err != nil {
			return fmt.Errorf("lmsapi submissions.submit: read file: %w", err)
		}
	}
	if in.Text != "" {
		if err := w.WriteField("text", in.Text); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	return c.do(ctx, request{
		op:          "submissions.submit",
		method:      http.MethodPost,
		path:        "/submissions/" + seg(assignmentID) + "/submit",
		token:       token,
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, nil)
}

// Submissions lists every submission of an assignment.
func (c *Client) Submissions(ctx context.Context, token, assignmentID string) ([]model.Submission, error) {
	var out []model.Submission
	err := c.doJSON(ctx, "submissions.list", http.MethodGet, "/submissions/"+seg(assignmentID), token, nil, &out)
	return out, err
}

func (c *Client) Grade(ctx context.Context, token, submissionID, grade string) error {
	body := struct {
		Grade string `json:"grade"`
	}{grade}
	return c.doJSON(ctx, "submissions.grade", http.MethodPost, "/submissions/grade/"+seg(submissionID), token, body, nil)
}
