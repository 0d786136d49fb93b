package api

import (
	"context"
	"fmt"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Login exchanges a username/password for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp authResponse
	req := credentialsRequest{Username: username, Password: password}
	if err := c.postAnonymous(ctx, "/api/auth/login", req, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login: empty token in response")
	}
	return resp.Token, nil
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	var resp authResponse
	req := credentialsRequest{Username: username, Password: password}
	if err := c.postAnonymous(ctx, "/api/auth/register", req, &resp); err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("register: empty token in response")
	}
	return resp.Token, nil
}
