// Package jira provides HTTP access to the Jira REST API and the
// credential resolution needed to authenticate against it.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// searchPageSize bounds one sync run's issue search. This is a
// deliberate scope limit on the mirror, not a full backfill.
const searchPageSize = 25

// commentPageSize is the page size requested from the comment endpoint.
const commentPageSize = 100

// searchFields is the set of fields requested in issue searches.
var searchFields = []string{
	"summary",
	"status",
	"priority",
	"assignee",
	"description",
	"updated",
	"project",
}

// APIError is a non-2xx response from Jira, carrying the HTTP status
// and the raw response body so callers can report the detail.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API error %d: %s", e.StatusCode, e.Body)
}

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields of a Jira issue.
type IssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"` // ADF tree or plain text
	Status      *NamedField     `json:"status"`
	Priority    *NamedField     `json:"priority"`
	Assignee    *UserField      `json:"assignee"`
	Updated     string          `json:"updated"`
	Project     *ProjectField   `json:"project"`
}

// NamedField is a Jira field carrying an id and display name.
type NamedField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserField represents a Jira user.
type UserField struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// ProjectField represents a Jira project reference.
type ProjectField struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// SearchResult represents a Jira JQL search response.
type SearchResult struct {
	Issues []Issue `json:"issues"`
}

// Comment represents one Jira issue comment.
type Comment struct {
	ID      string          `json:"id"`
	Body    json.RawMessage `json:"body"` // ADF tree or plain text
	Author  *UserField      `json:"author"`
	Created string          `json:"created"`
	Updated string          `json:"updated"`
}

// CommentPage is one page of the paginated comment endpoint.
type CommentPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []Comment `json:"comments"`
}

// Client provides HTTP access to a Jira site.
type Client struct {
	siteURL    string
	creds      CredentialProvider
	httpClient *http.Client
}

// NewClient creates a Jira client for the given site. The credential
// provider is consulted per request so OAuth token refresh takes effect
// mid-run.
func NewClient(siteURL string, creds CredentialProvider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		siteURL: siteURL,
		creds:   creds,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SearchIssues runs a JQL search for the project's most recently
// updated issues, returning at most one bounded page.
func (c *Client) SearchIssues(ctx context.Context, projectKey string) ([]Issue, error) {
	payload := struct {
		JQL        string   `json:"jql"`
		MaxResults int      `json:"maxResults"`
		Fields     []string `json:"fields"`
	}{
		JQL:        fmt.Sprintf("project = %s ORDER BY updated DESC", projectKey),
		MaxResults: searchPageSize,
		Fields:     searchFields,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	var result SearchResult
	apiURL := fmt.Sprintf("%s/rest/api/3/search/jql", c.siteURL)
	if err := c.fetchJSON(ctx, http.MethodPost, apiURL, body, &result); err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	return result.Issues, nil
}

// ListAllComments drains the paginated comment endpoint for one issue.
// The next offset is computed from the response's own startAt and
// maxResults, not the requested page size, so it stays correct if Jira
// clamps the page.
func (c *Client) ListAllComments(ctx context.Context, issueKey string) ([]Comment, error) {
	var all []Comment
	startAt := 0

	for {
		params := url.Values{
			"startAt":    {fmt.Sprintf("%d", startAt)},
			"maxResults": {fmt.Sprintf("%d", commentPageSize)},
			"orderBy":    {"created"},
		}
		apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s/comment?%s",
			c.siteURL, url.PathEscape(issueKey), params.Encode())

		var page CommentPage
		if err := c.fetchJSON(ctx, http.MethodGet, apiURL, nil, &page); err != nil {
			return nil, fmt.Errorf("list comments for %s: %w", issueKey, err)
		}

		all = append(all, page.Comments...)

		if len(all) >= page.Total || len(page.Comments) == 0 {
			break
		}
		startAt = page.StartAt + page.MaxResults
	}

	return all, nil
}

// fetchJSON executes an authenticated request and decodes the 2xx JSON
// response into out. Transient failures (network errors, 429, 5xx) are
// retried a few times with exponential backoff; any other non-2xx
// response fails immediately with an APIError.
func (c *Client) fetchJSON(ctx context.Context, method, apiURL string, body []byte, out any) error {
	authHeader, err := c.creds.AuthHeader(ctx)
	if err != nil {
		return err
	}

	operation := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", authHeader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("parse response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(operation, policy)
}

// jiraTimeLayout is the timestamp format Jira emits (RFC3339 with
// milliseconds and a numeric zone without a colon).
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// ParseTimeMillis parses a Jira timestamp into epoch milliseconds,
// returning fallback when the value is absent or unparseable.
func ParseTimeMillis(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	for _, layout := range []string{jiraTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UnixMilli()
		}
	}
	return fallback
}
