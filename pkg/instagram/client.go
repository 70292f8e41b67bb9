package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"igrelay/pkg/config"
	"igrelay/pkg/errors"
	"igrelay/pkg/logger"
)

// Client handles HTTP requests against the Instagram web API. A client is
// either anonymous or carries the session cookies of one logged-in account.
type Client struct {
	httpClient *http.Client
	jar        *cookiejar.Jar
	baseURL    string
	headers    map[string]string
	username   string
	logger     logger.Logger
}

// NewClient creates a new Instagram API client with an empty cookie jar
func NewClient(cfg *config.InstagramConfig, log logger.Logger) *Client {
	jar, _ := cookiejar.New(nil)

	client := &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Jar:     jar,
		},
		jar:     jar,
		baseURL: BaseURL,
		headers: map[string]string{
			"User-Agent":       cfg.UserAgent,
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9",
			"X-IG-App-ID":      cfg.AppID,
			"X-Requested-With": "XMLHttpRequest",
		},
		logger: log,
	}

	return client
}

// SetBaseURL overrides the API base URL (used in tests)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

// CurrentBaseURL returns the API base URL in use
func (c *Client) CurrentBaseURL() string {
	return c.baseURL
}

// Username returns the logged-in account name, or "" for anonymous clients
func (c *Client) Username() string {
	return c.username
}

// IsAuthenticated reports whether the client carries a logged-in session
func (c *Client) IsAuthenticated() bool {
	return c.username != ""
}

// SetHeader sets a custom header for all subsequent requests
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Get performs a GET request and returns the response
func (c *Client) Get(ctx context.Context, requestURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("failed to create request: %v", err), 0)
	}
	return c.doRequest(req)
}

// GetJSON performs a GET request and unmarshals the JSON response
func (c *Client) GetJSON(ctx context.Context, requestURL string, target interface{}) error {
	resp, err := c.Get(ctx, requestURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("failed to read response: %v", err), 0)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return errors.New(errors.ErrorTypeParsing, fmt.Sprintf("failed to parse JSON: %v", err), resp.StatusCode)
	}

	return nil
}

// PostForm performs a POST with form-encoded data and unmarshals the JSON
// response. The CSRF token from the cookie jar is attached automatically.
func (c *Client) PostForm(ctx context.Context, requestURL string, form url.Values, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("failed to create request: %v", err), 0)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if csrf := c.CookieValue("csrftoken"); csrf != "" {
		req.Header.Set("X-CSRFToken", csrf)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	// Login endpoints return meaningful JSON bodies on 4xx; decode before
	// mapping the status so callers can see the structured failure.
	if target != nil && readErr == nil && len(body) > 0 {
		if jsonErr := json.Unmarshal(body, target); jsonErr == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			return c.statusError(resp.StatusCode)
		}
	}

	if err := c.statusError(resp.StatusCode); err != nil {
		return err
	}
	if readErr != nil {
		return errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("failed to read response: %v", readErr), 0)
	}
	return errors.New(errors.ErrorTypeParsing, "failed to parse JSON response", resp.StatusCode)
}

// DownloadMedia streams a media URL to the writer and returns bytes written
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string, w io.Writer) (int64, error) {
	resp, err := c.Get(ctx, mediaURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return 0, err
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return written, errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("failed to download media: %v", err), 0)
	}

	return written, nil
}

// CookieValue returns the value of a cookie stored for the base URL
func (c *Client) CookieValue(name string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.jar.Cookies(u) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// SetCookies installs cookies for the base URL (used when restoring sessions)
func (c *Client) SetCookies(cookies []*http.Cookie) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	c.jar.SetCookies(u, cookies)
}

// Cookies returns the cookies currently stored for the base URL
func (c *Client) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// doRequest executes an HTTP request with default headers and logging
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if c.logger != nil {
			c.logger.ErrorWithFields("request failed", map[string]interface{}{
				"method":   req.Method,
				"url":      req.URL.String(),
				"duration": duration,
				"error":    err.Error(),
			})
		}
		return nil, errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("request failed: %v", err), 0)
	}

	if c.logger != nil {
		c.logger.DebugWithFields("request completed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"status":   resp.StatusCode,
			"duration": duration,
		})
	}

	return resp, nil
}

// checkResponseStatus maps HTTP status codes to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return c.statusError(resp.StatusCode)
}

func (c *Client) statusError(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return errors.New(errors.ErrorTypeRateLimit, "rate limited by Instagram", statusCode)
	case statusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrorTypeAuth, "authentication required", statusCode)
	case statusCode == http.StatusForbidden:
		return errors.New(errors.ErrorTypeAuth, "access denied", statusCode)
	case statusCode == http.StatusNotFound:
		return errors.New(errors.ErrorTypeNotFound, "resource not found", statusCode)
	case statusCode >= 500:
		return errors.New(errors.ErrorTypeServerError, fmt.Sprintf("server error: %d", statusCode), statusCode)
	default:
		return errors.New(errors.ErrorTypeUnknown, fmt.Sprintf("unexpected status: %d", statusCode), statusCode)
	}
}

// FetchProfile fetches a user profile by username
func (c *Client) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	var resp profileResponse
	if err := c.GetJSON(ctx, c.profileURL(username), &resp); err != nil {
		return nil, err
	}

	if resp.RequiresToLogin {
		return nil, errors.New(errors.ErrorTypeAuth, "profile requires login to view", 0)
	}
	if resp.Data.User == nil {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("user %s not found", username), 0)
	}

	user := resp.Data.User
	return &Profile{
		ID:        user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		IsPrivate: user.IsPrivate,
	}, nil
}

// FetchStories fetches the active story items for a numeric user ID.
// An empty slice means the user has no active stories.
func (c *Client) FetchStories(ctx context.Context, userID string) ([]MediaItem, error) {
	var resp reelsMediaResponse
	if err := c.GetJSON(ctx, c.storiesURL(userID), &resp); err != nil {
		return nil, err
	}

	items := []MediaItem{}
	for _, reel := range resp.ReelsMedia {
		for _, item := range reel.Items {
			media, ok := storyToMedia(item)
			if !ok {
				continue
			}
			items = append(items, media)
		}
	}

	return items, nil
}

// storyToMedia picks the best candidate URL out of a story item
func storyToMedia(item storyItem) (MediaItem, bool) {
	id := item.ID
	if id == "" {
		id = fmt.Sprintf("%v", item.PK)
	}

	if item.MediaType == 2 && len(item.VideoVersions) > 0 {
		return MediaItem{ID: id, Kind: MediaKindVideo, URL: item.VideoVersions[0].URL}, true
	}
	if len(item.ImageVersions.Candidates) > 0 {
		return MediaItem{ID: id, Kind: MediaKindPhoto, URL: item.ImageVersions.Candidates[0].URL}, true
	}
	return MediaItem{}, false
}

// FetchPost fetches a post or reel by shortcode, expanding carousels
func (c *Client) FetchPost(ctx context.Context, shortcode string) (*Post, error) {
	var resp shortcodeMediaResponse
	if err := c.GetJSON(ctx, c.shortcodeURL(shortcode), &resp); err != nil {
		return nil, err
	}

	media := resp.Data.ShortcodeMedia
	if media == nil {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("post %s not found", shortcode), 0)
	}

	post := &Post{
		Shortcode: media.Shortcode,
		Owner:     media.Owner.Username,
	}

	if len(media.SidecarChildren.Edges) > 0 {
		for _, edge := range media.SidecarChildren.Edges {
			post.Items = append(post.Items, nodeToMedia(&edge.Node))
		}
	} else {
		post.Items = append(post.Items, nodeToMedia(media))
	}

	return post, nil
}

// nodeToMedia converts a GraphQL media node to a downloadable item
func nodeToMedia(node *shortcodeMedia) MediaItem {
	if node.IsVideo && node.VideoURL != "" {
		return MediaItem{ID: node.ID, Kind: MediaKindVideo, URL: node.VideoURL}
	}
	return MediaItem{ID: node.ID, Kind: MediaKindPhoto, URL: node.DisplayURL}
}
