// Package web exposes the mirror over HTTP: the query surface consumed
// by the dashboard, the sync trigger, settings mutations, and the OAuth
// callback endpoint.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danielolaszy/incboard/internal/config"
	"github.com/danielolaszy/incboard/internal/jira"
	"github.com/danielolaszy/incboard/internal/logging"
	"github.com/danielolaszy/incboard/internal/store"
	syncer "github.com/danielolaszy/incboard/internal/sync"
	"github.com/danielolaszy/incboard/pkg/models"
)

// Server handles HTTP requests against the local mirror.
type Server struct {
	Router *chi.Mux

	cfg    *config.Config
	store  store.Store
	syncer *syncer.Syncer

	// flow is nil unless the OAuth extension is configured.
	flow *jira.Flow
}

// NewServer wires the router. flow may be nil when OAuth is not configured.
func NewServer(cfg *config.Config, st store.Store, sy *syncer.Syncer, flow *jira.Flow) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		syncer: sy,
		flow:   flow,
	}
	s.setupRoutes()
	return s
}

// queryTimeout bounds the read/settings endpoints. The sync trigger is
// bounded separately by syncTimeout.
const queryTimeout = 2 * time.Minute

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.With(middleware.Timeout(queryTimeout)).Get("/health", s.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(queryTimeout))
			r.Get("/status", s.getStatus)
			r.Get("/tickets", s.listTickets)
			r.Get("/tickets/{key}/comments", s.listTicketComments)
			r.Get("/comments", s.listAllComments)
			r.Put("/settings/project-key", s.setProjectKey)
			r.Put("/settings/severity", s.setSeverity)
		})

		// The trigger runs a whole sync pass inline, so its bound must
		// sit above the run deadline, not below it.
		r.With(middleware.Timeout(s.syncTimeout())).Post("/sync", s.triggerSync)
	})

	if s.flow != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(queryTimeout))
			r.Get("/jira/oauth/connect", s.oauthConnect)
			r.Get("/jira/oauth/callback", s.oauthCallback)
		})
	}

	s.Router = r
}

// syncTimeout leaves headroom above the configured run deadline so the
// run aborts on its own timeout, not the router's.
func (s *Server) syncTimeout() time.Duration {
	if s.cfg.RunTimeout > 0 {
		return s.cfg.RunTimeout + 30*time.Second
	}
	return queryTimeout
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "incboard",
	})
}

// getStatus reports the mirror's connection state for the dashboard.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	projectKey := settings.ProjectKey
	if projectKey == "" {
		projectKey = s.cfg.Jira.DefaultProjectKey
	}

	writeJSON(w, http.StatusOK, models.SyncStatus{
		Connected:  config.ValidatePAT(s.cfg) == nil,
		SiteURL:    s.cfg.Jira.SiteURL,
		ProjectKey: projectKey,
		LastSyncAt: settings.LastSyncAt,
	})
}

// listTickets returns tickets most recently updated first. The project
// query parameter restricts results to that key prefix; the severity
// parameter (falling back to the stored filter) restricts by priority.
// Severity filtering is presentation-layer only, it never affects sync.
func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	severity := models.NormalizeSeverity(r.URL.Query().Get("severity"))
	if severity != "" && !models.IsSeverity(severity) {
		s.writeError(w, &store.ValidationError{
			Field:  "severity",
			Reason: fmt.Sprintf("%q is not one of %s", severity, strings.Join(models.Severities, ", ")),
		})
		return
	}
	if severity == "" {
		settings, err := s.store.GetSettings(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		severity = settings.Severity
	}

	tickets, err := s.store.ListTickets(r.Context(), keyPrefix(r.URL.Query().Get("project")))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if severity != "" && severity != "ALL" {
		filtered := tickets[:0]
		for _, t := range tickets {
			if models.MatchesSeverity(t.Priority, severity) {
				filtered = append(filtered, t)
			}
		}
		tickets = filtered
	}

	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) listTicketComments(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	comments, err := s.store.ListComments(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if comments == nil {
		comments = []models.TicketComment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) listAllComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.ListAllComments(r.Context(), keyPrefix(r.URL.Query().Get("project")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if comments == nil {
		comments = []models.TicketComment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// triggerSync runs one sync pass synchronously. A run already in
// progress answers 409 rather than queuing.
func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if err := s.syncer.RunOnce(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "synced"})
}

func (s *Server) setProjectKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectKey string `json:"projectKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	normalized, err := s.store.SetProjectKey(r.Context(), body.ProjectKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"projectKey": normalized})
}

func (s *Server) setSeverity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Severity string `json:"severity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	normalized, err := s.store.SetSeverity(r.Context(), body.Severity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"severity": normalized})
}

// oauthConnect starts the OAuth handshake by redirecting to Atlassian.
func (s *Server) oauthConnect(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.flow.Begin(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// oauthCallback consumes the authorization redirect, persists the
// account, and either forwards to the configured success URL (with the
// account id appended) or renders a minimal confirmation page.
func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		http.Error(w, "OAuth error: "+errParam, http.StatusBadRequest)
		return
	}
	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		http.Error(w, "Missing code or state.", http.StatusBadRequest)
		return
	}

	account, err := s.flow.Complete(r.Context(), code, state)
	if err != nil {
		logging.Error("oauth callback failed", "error", err)
		s.writeError(w, err)
		return
	}

	if s.cfg.OAuth.SuccessURL != "" {
		redirect := s.cfg.OAuth.SuccessURL
		if strings.Contains(redirect, "?") {
			redirect += "&accountId=" + url.QueryEscape(account.ID)
		} else {
			redirect += "?accountId=" + url.QueryEscape(account.ID)
		}
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>Jira connected</h1><p>Account %s linked to %s. You can close this window.</p></body></html>",
		account.ID, account.SiteURL)
}

// writeError maps the error taxonomy onto HTTP statuses: validation
// failures are the caller's fault, credential problems are unauthorized,
// a concurrent run is a conflict, everything else is a server-side
// failure.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validation *store.ValidationError
	var auth *jira.AuthError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.As(err, &auth):
		http.Error(w, auth.Error(), http.StatusUnauthorized)
	case errors.Is(err, syncer.ErrSyncInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logging.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// keyPrefix converts a project key query parameter into the ticket key
// prefix used for filtering (e.g. "inc" -> "INC-").
func keyPrefix(projectKey string) string {
	normalized := strings.ToUpper(strings.TrimSpace(projectKey))
	if normalized == "" {
		return ""
	}
	return normalized + "-"
}
