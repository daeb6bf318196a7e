package lmsapi

import (
	"context"
	"net/http"

	"lmsportal/internal/model"
)

// Credentials is the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the signup form.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate is the profile form. An empty password leaves it unchanged.
type ProfileUpdate struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// AuthResult is what /auth/login and /auth/register answer. Token is empty
// when the server did not issue one.
type AuthResult struct {
	Token   string      `json:"token"`
	Message string      `json:"message"`
	User    *model.User `json:"user,omitempty"`
}

type userEnvelope struct {
	User    *model.User `json:"user"`
	Message string      `json:"message"`
}

func (c *Client) Login(ctx context.Context, in Credentials) (AuthResult, error) {
	var out AuthResult
	err := c.doJSON(ctx, "auth.login", http.MethodPost, "/auth/login", "", in, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, in Registration) (AuthResult, error) {
	var out AuthResult
	err := c.doJSON(ctx, "auth.register", http.MethodPost, "/auth/register", "", in, &out)
	return out, err
}

// Me returns the user the credential belongs to.
func (c *Client) Me(ctx context.Context, token string) (model.User, error) {
	var out userEnvelope
	if err := c.doJSON(ctx, "auth.me", http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return model.User{}, err
	}
	if out.User == nil {
		return model.User{}, &APIError{Op: "auth.me", Status: http.StatusBadGateway, Message: "response carried no user"}
	}
	return *out.User, nil
}

// UpdateProfile submits the profile form. The returned user is the server's
// copy when it sends one, otherwise the submitted fields.
func (c *Client) UpdateProfile(ctx context.Context, token string, in ProfileUpdate) (model.User, error) {
	var out userEnvelope
	if err := c.doJSON(ctx, "auth.update", http.MethodPut, "/auth/update", token, in, &out); err != nil {
		return model.User{}, err
	}
	if out.User != nil {
		return *out.User, nil
	}
	return model.User{Name: in.Name, Email: in.Email}, nil
}
