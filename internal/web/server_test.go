package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/incboard/internal/config"
	"github.com/danielolaszy/incboard/internal/jira"
	"github.com/danielolaszy/incboard/internal/store/sqlite"
	syncer "github.com/danielolaszy/incboard/internal/sync"
	"github.com/danielolaszy/incboard/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *sqlite.SQLiteStore, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		Jira: config.JiraConfig{
			SiteURL:  "https://example.atlassian.net",
			PATEmail: "ops@example.com",
			PATToken: "test-token",
		},
		DBPath:         filepath.Join(t.TempDir(), "incboard.db"),
		RequestTimeout: 5 * time.Second,
		RunTimeout:     30 * time.Second,
	}

	st, err := sqlite.New(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	creds := &jira.PATCredentials{Email: cfg.Jira.PATEmail, Token: cfg.Jira.PATToken}
	client := jira.NewClient(cfg.Jira.SiteURL, creds, cfg.RequestTimeout)

	return NewServer(cfg, st, syncer.New(cfg, client, st), nil), st, cfg
}

func seedTickets(t *testing.T, st *sqlite.SQLiteStore) {
	t.Helper()
	require.NoError(t, st.UpsertTickets(context.Background(), []models.Ticket{
		{Key: "INC-1", Title: "Payments down", Status: "In Progress", Priority: "P1", Assignee: "dana", UpdatedAt: 3000},
		{Key: "INC-2", Title: "Search degraded", Status: "Open", Priority: "P3", Assignee: "Unassigned", UpdatedAt: 2000},
		{Key: "OPS-9", Title: "Disk pressure", Status: "Open", Priority: "P1", Assignee: "lee", UpdatedAt: 1000},
	}))
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestListTickets(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedTickets(t, st)

	rec := doRequest(t, s, http.MethodGet, "/api/tickets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tickets []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 3)
	assert.Equal(t, "INC-1", tickets[0].Key, "most recently updated first")
}

func TestListTicketsProjectFilter(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedTickets(t, st)

	rec := doRequest(t, s, http.MethodGet, "/api/tickets?project=inc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tickets []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.True(t, strings.HasPrefix(ticket.Key, "INC-"))
	}
}

func TestListTicketsSeverityFilter(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedTickets(t, st)

	rec := doRequest(t, s, http.MethodGet, "/api/tickets?severity=p1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tickets []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.Equal(t, "P1", ticket.Priority)
	}
}

func TestListTicketsSeverityMatchesPriorityNames(t *testing.T) {
	// Synced tickets carry Jira's priority names verbatim, so the
	// severity filter must match scheme names, not just "P1".."P4".
	s, st, _ := newTestServer(t)
	require.NoError(t, st.UpsertTickets(context.Background(), []models.Ticket{
		{Key: "INC-10", Title: "Payments down", Priority: "Highest", UpdatedAt: 3000},
		{Key: "INC-11", Title: "Search degraded", Priority: "High", UpdatedAt: 2000},
		{Key: "INC-12", Title: "Stale cache", Priority: "Medium", UpdatedAt: 1000},
	}))

	rec := doRequest(t, s, http.MethodGet, "/api/tickets?severity=P1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tickets []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 1)
	assert.Equal(t, "INC-10", tickets[0].Key)

	rec = doRequest(t, s, http.MethodGet, "/api/tickets?severity=P2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 1)
	assert.Equal(t, "INC-11", tickets[0].Key)
}

func TestListTicketsInvalidSeverity(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/tickets?severity=P9", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "severity")
}

func TestListTicketsUsesStoredSeverity(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedTickets(t, st)

	_, err := st.SetSeverity(context.Background(), "P3")
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodGet, "/api/tickets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tickets []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 1)
	assert.Equal(t, "INC-2", tickets[0].Key)
}

func TestListTicketsEmptyMirror(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/tickets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "empty mirror answers an empty array, not null")
}

func TestListTicketComments(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedTickets(t, st)
	require.NoError(t, st.ReconcileComments(context.Background(), "INC-1", []models.TicketComment{
		{JiraCommentID: "10001", TicketKey: "INC-1", Author: "dana", Body: "mitigation rolling out", CreatedAt: 100, UpdatedAt: 200},
	}))

	rec := doRequest(t, s, http.MethodGet, "/api/tickets/INC-1/comments", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var comments []models.TicketComment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comments))
	require.Len(t, comments, 1)
	assert.Equal(t, "10001", comments[0].JiraCommentID)

	rec = doRequest(t, s, http.MethodGet, "/api/tickets/INC-2/comments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetStatus(t *testing.T) {
	s, st, cfg := newTestServer(t)
	cfg.Jira.DefaultProjectKey = "INC"
	require.NoError(t, st.SetLastSync(context.Background(), 1234))

	rec := doRequest(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Connected)
	assert.Equal(t, "https://example.atlassian.net", status.SiteURL)
	assert.Equal(t, "INC", status.ProjectKey)
	assert.Equal(t, int64(1234), status.LastSyncAt)
}

func TestSetProjectKey(t *testing.T) {
	s, st, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/settings/project-key", `{"projectKey":" inc "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INC", body["projectKey"])

	settings, err := st.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "INC", settings.ProjectKey)
}

func TestSetProjectKeyRejectsEmpty(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/settings/project-key", `{"projectKey":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetSeverity(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/settings/severity", `{"severity":"p2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "P2", body["severity"])

	rec = doRequest(t, s, http.MethodPut, "/api/settings/severity", `{"severity":"P9"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/settings/severity", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerSyncWithoutProjectKey(t *testing.T) {
	// With no project key configured the run is a no-op rather than an
	// error, so the trigger still answers 200.
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "synced")
}

func TestSyncTimeoutExceedsRunDeadline(t *testing.T) {
	s, _, cfg := newTestServer(t)

	assert.Greater(t, s.syncTimeout(), cfg.RunTimeout,
		"the trigger route must not cut a run off before its own deadline")

	cfg.RunTimeout = 0
	assert.Equal(t, queryTimeout, s.syncTimeout())
}

func TestTriggerSyncConflict(t *testing.T) {
	s, _, cfg := newTestServer(t)

	held := flock.New(cfg.DBPath + ".sync.lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	rec := doRequest(t, s, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOAuthRoutesAbsentWithoutFlow(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/jira/oauth/connect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOAuthCallbackValidation(t *testing.T) {
	s, st, _ := newTestServer(t)
	s.flow = &jira.Flow{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://board.example.com/jira/oauth/callback",
		States:       st,
		Accounts:     st,
	}
	s.setupRoutes()

	rec := doRequest(t, s, http.MethodGet, "/jira/oauth/callback?error=access_denied", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_denied")

	rec = doRequest(t, s, http.MethodGet, "/jira/oauth/callback?code=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A state nonce that was never issued is rejected as unauthorized.
	rec = doRequest(t, s, http.MethodGet, "/jira/oauth/callback?code=abc&state=never-issued", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
