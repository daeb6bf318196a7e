package lmsapi

import (
	"context"
	"net/http"

	"lmsportal/internal/model"
)

// DigestRequest asks the API to email a notification digest to a student.
type DigestRequest struct {
	StudentID    string `json:"studentId"`
	StudentEmail string `json:"studentEmail"`
}

func (c *Client) Messages(ctx context.Context, token, userID string) ([]model.Notification, error) {
	var out []model.Notification
	err := c.doJSON(ctx, "messages.list", http.MethodGet, "/messages/"+seg(userID), token, nil, &out)
	return out, err
}

func (c *Client) Notifications(ctx context.Context, token, userID string) ([]model.Notification, error) {
	var out []model.Notification
	err := c.doJSON(ctx, "notifications.list", http.MethodGet, "/notifications/"+seg(userID), token, nil, &out)
	return out, err
}

func (c *Client) SendEmailDigest(ctx context.Context, token string, in DigestRequest) error {
	return c.doJSON(ctx, "notifications.send_email", http.MethodPost, "/notifications/send-email", token, in, nil)
}
