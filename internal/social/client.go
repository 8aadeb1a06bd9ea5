package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"repostflow/internal/domain"
)

// Client talks to the social-network API. It fetches and caches a bearer
// token from client credentials and exposes the two calls the rest of the
// system needs: listing an account's recent posts and reposting by post ID.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client

	mu          sync.Mutex
	token       string
	tokenExpire time.Time
}

func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *Client) FetchRecentPosts(ctx context.Context, accountID string) ([]domain.Post, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(c.baseURL + "/v1/accounts/" + url.PathEscape(accountID) + "/posts")
	q := u.Query()
	q.Set("limit", "20")
	u.RawQuery = q.Encode()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch posts status=%d body=%s", res.StatusCode, string(body))
	}

	var payload struct {
		Posts []struct {
			ID        string `json:"id"`
			Author    string `json:"author"`
			Text      string `json:"text"`
			CreatedAt string `json:"created_at"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	now := time.Now()
	out := make([]domain.Post, 0, len(payload.Posts))
	for _, item := range payload.Posts {
		if item.ID == "" {
			continue
		}
		postedAt, _ := parsePostTime(item.CreatedAt)
		out = append(out, domain.Post{
			ID:        item.ID,
			AccountID: accountID,
			Author:    item.Author,
			Text:      item.Text,
			PostedAt:  postedAt,
			FetchedAt: now,
		})
	}
	return out, nil
}

// Repost re-shares the given post to the authenticated account's followers.
func (c *Client) Repost(ctx context.Context, postID string) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}
	u := c.baseURL + "/v1/posts/" + url.PathEscape(postID) + "/repost"
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("repost: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return fmt.Errorf("repost status=%d body=%s", res.StatusCode, string(body))
	}
	return nil
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpire.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("token status=%d body=%s", res.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	c.token = payload.AccessToken
	c.tokenExpire = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.token, nil
}

// parsePostTime accepts RFC3339 or unix seconds/millis, which is what the
// post feed returns depending on endpoint version.
func parsePostTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > 1e12 {
		n = n / 1000
	}
	return time.Unix(n, 0), nil
}
