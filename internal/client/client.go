// Package client provides a Go client for the tagblog API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/tagblog/internal/view"
)

// Client is a tagblog API client. Token is sent on every request once set.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// New creates a new tagblog client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-success response. Fields holds the decoded JSON body
// when there is one, e.g. {"detail": "..."} or {"title": ["..."]}.
type APIError struct {
	StatusCode int
	Fields     map[string]any
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Detail returns the "detail" message of the error body, if any.
func (e *APIError) Detail() string {
	s, _ := e.Fields["detail"].(string)
	return s
}

// PostUpdate is a partial post update. Nil fields are left out of the
// request; a non-nil empty Hashtags clears the post's hashtags.
type PostUpdate struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Hashtags *[]string `json:"hashtags,omitempty"`
}

// Register creates a user and keeps its token.
func (c *Client) Register(username, email, password string) (*view.Registration, error) {
	var reg view.Registration
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(http.MethodPost, "/api/auth/register/", body, http.StatusCreated, &reg); err != nil {
		return nil, err
	}
	c.Token = reg.Token
	return &reg, nil
}

// Login exchanges credentials for the user's token and keeps it.
func (c *Client) Login(username, password string) (*view.Session, error) {
	var sess view.Session
	body := map[string]string{"username": username, "password": password}
	if err := c.do(http.MethodPost, "/api/auth/login/", body, http.StatusOK, &sess); err != nil {
		return nil, err
	}
	c.Token = sess.Token
	return &sess, nil
}

func (c *Client) CreatePost(title, content string, hashtags []string) (*view.PostWrite, error) {
	body := map[string]any{"title": title, "content": content}
	if hashtags != nil {
		body["hashtags"] = hashtags
	}
	var post view.PostWrite
	if err := c.do(http.MethodPost, "/api/posts/", body, http.StatusCreated, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost sends a PATCH with the non-nil fields of u.
func (c *Client) UpdatePost(id int64, u PostUpdate) (*view.PostWrite, error) {
	var post view.PostWrite
	if err := c.do(http.MethodPatch, postPath(id), u, http.StatusOK, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) GetPost(id int64) (*view.PostDetail, error) {
	var post view.PostDetail
	if err := c.do(http.MethodGet, postPath(id), nil, http.StatusOK, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts lists posts, newest first. An empty hashtag lists everything.
func (c *Client) ListPosts(hashtag string) ([]view.PostList, error) {
	path := "/api/posts/"
	if hashtag != "" {
		path += "?" + url.Values{"hashtag": {hashtag}}.Encode()
	}
	var posts []view.PostList
	if err := c.do(http.MethodGet, path, nil, http.StatusOK, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) DeletePost(id int64) error {
	return c.do(http.MethodDelete, postPath(id), nil, http.StatusNoContent, nil)
}

func (c *Client) CreateComment(postID int64, content string) (*view.CommentDetail, error) {
	var comment view.CommentDetail
	body := map[string]any{"post": postID, "content": content}
	if err := c.do(http.MethodPost, "/api/comments/", body, http.StatusCreated, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListComments lists comments on postID, or all comments when postID is 0.
func (c *Client) ListComments(postID int64) ([]view.CommentDetail, error) {
	path := "/api/comments/"
	if postID > 0 {
		path += "?post=" + strconv.FormatInt(postID, 10)
	}
	var comments []view.CommentDetail
	if err := c.do(http.MethodGet, path, nil, http.StatusOK, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) ListHashtags() ([]view.Hashtag, error) {
	var tags []view.Hashtag
	if err := c.do(http.MethodGet, "/api/hashtags/", nil, http.StatusOK, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (c *Client) GetUser(id int64) (*view.Profile, error) {
	var profile view.Profile
	if err := c.do(http.MethodGet, "/api/users/"+strconv.FormatInt(id, 10)+"/", nil, http.StatusOK, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) Stats() (*view.Stats, error) {
	var stats view.Stats
	if err := c.do(http.MethodGet, "/api/stats/", nil, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func postPath(id int64) string {
	return "/api/posts/" + strconv.FormatInt(id, 10) + "/"
}

// do sends body as JSON and decodes the response into out when the status
// is want. Any other status becomes an *APIError.
func (c *Client) do(method, path string, body any, want int, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Token "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		_ = json.Unmarshal(raw, &apiErr.Fields)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers username with a fixed password and
// returns a client holding its token.
func (h *TestHelper) CreateAuthenticatedClient(username string) (*Client, error) {
	c := New(h.BaseURL)
	if _, err := c.Register(username, username+"@example.com", "password123"); err != nil {
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	return c, nil
}
