// Package sync implements the per-project synchronization run that
// mirrors Jira issues and comments into the local store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/danielolaszy/incboard/internal/adf"
	"github.com/danielolaszy/incboard/internal/config"
	"github.com/danielolaszy/incboard/internal/jira"
	"github.com/danielolaszy/incboard/internal/logging"
	"github.com/danielolaszy/incboard/internal/store"
	"github.com/danielolaszy/incboard/pkg/models"
)

// ErrSyncInProgress is returned when a run is triggered while another
// run holds the sync lock. Overlapping runs race on the same natural
// keys, so concurrent triggers fail fast instead of queuing.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// ErrRunTimeout marks a run aborted by the overall run deadline.
var ErrRunTimeout = errors.New("sync run timed out")

// Syncer performs one complete sync pass per invocation. Credentials
// are validated by the caller before construction; the client resolves
// them per request.
type Syncer struct {
	cfg    *config.Config
	client *jira.Client
	store  store.Store
	lock   *flock.Flock
	now    func() time.Time

	// running guards against same-process overlap: the file lock is
	// re-entrant per Flock instance, so the scheduler goroutine and the
	// HTTP trigger sharing one Syncer would otherwise both acquire it.
	running atomic.Bool
}

// New creates a Syncer. The run lock lives next to the database file so
// separate processes sharing the mirror exclude each other too.
func New(cfg *config.Config, client *jira.Client, st store.Store) *Syncer {
	return &Syncer{
		cfg:    cfg,
		client: client,
		store:  st,
		lock:   flock.New(cfg.DBPath + ".sync.lock"),
		now:    time.Now,
	}
}

// RunOnce executes one sync pass: search the configured project,
// reconcile the ticket batch, then fetch and reconcile each issue's
// complete comment list sequentially. Any error aborts the run; tickets
// already committed stay committed (at-least-partial-progress, not
// atomic across the run).
func (s *Syncer) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer s.running.Store(false)

	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !locked {
		return ErrSyncInProgress
	}
	defer func() { _ = s.lock.Unlock() }()

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	err = s.run(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRunTimeout, err)
	}
	return err
}

func (s *Syncer) run(ctx context.Context) error {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("read sync settings: %w", err)
	}

	projectKey := settings.ProjectKey
	if projectKey == "" {
		projectKey = s.cfg.Jira.DefaultProjectKey
	}
	if projectKey == "" {
		logging.Info("no project key configured, skipping sync")
		return nil
	}

	started := s.now()
	logging.Info("starting sync run", "project", projectKey)

	issues, err := s.client.SearchIssues(ctx, projectKey)
	if err != nil {
		return err
	}
	logging.Debug("issue search complete", "project", projectKey, "count", len(issues))

	runTime := started.UnixMilli()
	tickets := make([]models.Ticket, 0, len(issues))
	for _, issue := range issues {
		tickets = append(tickets, s.buildTicket(issue, projectKey, runTime))
	}

	// The whole batch commits in one call so a half-synced run is
	// never partially visible to readers.
	if err := s.store.UpsertTickets(ctx, tickets); err != nil {
		return err
	}

	// One issue at a time: outbound concurrency stays at 1 and avoids
	// rate-limit bursts.
	for _, issue := range issues {
		raw, err := s.client.ListAllComments(ctx, issue.Key)
		if err != nil {
			return err
		}

		comments := make([]models.TicketComment, 0, len(raw))
		for _, c := range raw {
			comments = append(comments, buildComment(c, issue.Key, runTime))
		}

		if err := s.store.ReconcileComments(ctx, issue.Key, comments); err != nil {
			return err
		}
	}

	finished := s.now().UnixMilli()
	if err := s.store.SetLastSync(ctx, finished); err != nil {
		return err
	}

	logging.Info("sync run complete",
		"project", projectKey,
		"tickets", len(tickets),
		"duration", s.now().Sub(started).String())
	return nil
}

// RunForever runs a pass immediately, then on every interval tick until
// the context is cancelled. Failed runs are logged and retried whole on
// the next tick.
func (s *Syncer) RunForever(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Minute
	}

	if err := s.RunOnce(ctx); err != nil {
		logging.Error("sync run failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				logging.Error("sync run failed", "error", err)
			}
		}
	}
}

// buildTicket normalizes one Jira issue into the mirror's ticket shape,
// applying the documented field defaults.
func (s *Syncer) buildTicket(issue jira.Issue, projectKey string, runTime int64) models.Ticket {
	description := adf.Flatten(issue.Fields.Description)

	title := issue.Fields.Summary
	if title == "" {
		title = issue.Key
	}

	status := "Unknown"
	if issue.Fields.Status != nil && issue.Fields.Status.Name != "" {
		status = issue.Fields.Status.Name
	}

	priority := "Unspecified"
	if issue.Fields.Priority != nil && issue.Fields.Priority.Name != "" {
		priority = issue.Fields.Priority.Name
	}

	assignee := "Unassigned"
	if issue.Fields.Assignee != nil && issue.Fields.Assignee.DisplayName != "" {
		assignee = issue.Fields.Assignee.DisplayName
	}

	summary := adf.Summarize(description, adf.DefaultSummaryLimit)
	if summary == "" {
		summary = issue.Fields.Summary
	}

	return models.Ticket{
		Key:         issue.Key,
		Title:       title,
		Description: description,
		Status:      status,
		Priority:    priority,
		Assignee:    assignee,
		Service:     projectKey,
		Summary:     summary,
		URL:         fmt.Sprintf("%s/browse/%s", s.cfg.Jira.SiteURL, issue.Key),
		Source:      "jira",
		UpdatedAt:   jira.ParseTimeMillis(issue.Fields.Updated, runTime),
	}
}

// buildComment normalizes one Jira comment, defaulting author and
// timestamps.
func buildComment(c jira.Comment, ticketKey string, runTime int64) models.TicketComment {
	author := "Unknown"
	if c.Author != nil && c.Author.DisplayName != "" {
		author = c.Author.DisplayName
	}

	return models.TicketComment{
		JiraCommentID: c.ID,
		TicketKey:     ticketKey,
		Author:        author,
		Body:          adf.Flatten(c.Body),
		CreatedAt:     jira.ParseTimeMillis(c.Created, runTime),
		UpdatedAt:     jira.ParseTimeMillis(c.Updated, runTime),
	}
}
