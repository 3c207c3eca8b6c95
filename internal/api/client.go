// Package api is the REST client for the chat server.
package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"resty.dev/v3"

	"github.com/bhandras/parley/internal/protocol/wire"
)

// requestTimeout bounds every REST call.
const requestTimeout = 10 * time.Second

// Client wraps the chat server REST API.
type Client struct {
	http *resty.Client
}

// New creates a REST client for the given server. The token may be empty for
// unauthenticated calls (login, register) and set later via SetToken.
func New(serverURL, token string) *Client {
	c := resty.New().
		SetBaseURL(serverURL).
		SetTimeout(requestTimeout)
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

// SetToken replaces the bearer token used for subsequent requests. The live
// websocket connection is unaffected; only future REST calls (and future
// reconnects, which fetch the token themselves) see the new credential.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.http.Close()
}

// apiError reports a non-2xx response.
func apiError(op string, res *resty.Response) error {
	return fmt.Errorf("%s failed: %s", op, res.Status())
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": username,
			"password": password,
		}).
		SetResult(&out).
		Post("/token")
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	if res.IsError() {
		return "", apiError("login", res)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("login returned empty token")
	}
	return out.AccessToken, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*wire.User, error) {
	var out wire.User
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/users/me")
	if err != nil {
		return nil, fmt.Errorf("me request failed: %w", err)
	}
	if res.IsError() {
		return nil, apiError("me", res)
	}
	return &out, nil
}

// Users fetches all peers with their roster summaries.
func (c *Client) Users(ctx context.Context) ([]wire.User, error) {
	var out []wire.User
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/users")
	if err != nil {
		return nil, fmt.Errorf("users request failed: %w", err)
	}
	if res.IsError() {
		return nil, apiError("users", res)
	}
	return out, nil
}

// Groups fetches all groups with their roster summaries.
func (c *Client) Groups(ctx context.Context) ([]wire.Group, error) {
	var out []wire.Group
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/groups")
	if err != nil {
		return nil, fmt.Errorf("groups request failed: %w", err)
	}
	if res.IsError() {
		return nil, apiError("groups", res)
	}
	return out, nil
}

// PrivateMessages fetches the full history of the conversation with the
// given user, in server order.
func (c *Client) PrivateMessages(ctx context.Context, otherUserID string) ([]wire.Message, error) {
	var out []wire.Message
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/messages/" + url.PathEscape(otherUserID))
	if err != nil {
		return nil, fmt.Errorf("private history request failed: %w", err)
	}
	if res.IsError() {
		return nil, apiError("private history", res)
	}
	return out, nil
}

// GroupMessages fetches the full history of a group, in server order.
func (c *Client) GroupMessages(ctx context.Context, groupID string) ([]wire.Message, error) {
	var out []wire.Message
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/messages/group/" + url.PathEscape(groupID))
	if err != nil {
		return nil, fmt.Errorf("group history request failed: %w", err)
	}
	if res.IsError() {
		return nil, apiError("group history", res)
	}
	return out, nil
}

// MarkRead acknowledges a conversation as read.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Post("/conversations/read/" + url.PathEscape(conversationID))
	if err != nil {
		return fmt.Errorf("mark read request failed: %w", err)
	}
	if res.IsError() {
		return apiError("mark read", res)
	}
	return nil
}

// CreateGroup creates a new group conversation.
func (c *Client) CreateGroup(ctx context.Context, name string, members []string, createdBy string) (*wire.Group, error) {
	var out wire.Group
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"name":       name,
			"members":    members,
			"created_by": createdBy,
		}).
		SetResult(&out).
		Post("/groups")
	if err != nil {
		return nil, fmt.Errorf("create group request failed: %w", err)
	}
	if res.IsError() {
		return nil, apiError("create group", res)
	}
	return &out, nil
}

// AddGroupMember adds a user to a group.
func (c *Client) AddGroupMember(ctx context.Context, groupID, userID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"members": []string{userID},
		}).
		Put("/groups/" + url.PathEscape(groupID) + "/members")
	if err != nil {
		return fmt.Errorf("add group member request failed: %w", err)
	}
	if res.IsError() {
		return apiError("add group member", res)
	}
	return nil
}

// DeleteGroup removes a group conversation.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Delete("/groups/" + url.PathEscape(groupID))
	if err != nil {
		return fmt.Errorf("delete group request failed: %w", err)
	}
	if res.IsError() {
		return apiError("delete group", res)
	}
	return nil
}
