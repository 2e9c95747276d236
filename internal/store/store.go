// Package store defines the persistence interface for the local Jira
// mirror: tickets, comments, sync settings, and OAuth records.
package store

import (
	"context"
	"fmt"

	"github.com/danielolaszy/incboard/internal/jira"
	"github.com/danielolaszy/incboard/pkg/models"
)

// Setting names used by the keyed settings table. One row per name.
const (
	SettingProjectKey = "projectKey"
	SettingSeverity   = "ticketSeverity"
	SettingLastSync   = "lastSyncAt"
)

// ValidationError reports rejected user input to a settings mutation.
// It is recoverable: the stored value is left unchanged and the caller
// surfaces the message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Store is the reconciliation store. Each method is individually
// atomic; there is no transactionality across an entire sync run.
type Store interface {
	// UpsertTickets reconciles one sync run's full ticket batch by
	// natural key: existing rows are fully overwritten, new keys are
	// inserted. Tickets are never deleted by the sync engine.
	UpsertTickets(ctx context.Context, tickets []models.Ticket) error

	// ReconcileComments makes the stored comment set for ticketKey
	// exactly equal to the given complete list from Jira: upsert by
	// remote comment id first, then prune every stored comment whose
	// id is absent from the incoming set.
	ReconcileComments(ctx context.Context, ticketKey string, comments []models.TicketComment) error

	// ListTickets returns tickets ordered by updatedAt descending,
	// optionally filtered to keys starting with keyPrefix.
	ListTickets(ctx context.Context, keyPrefix string) ([]models.Ticket, error)

	// ListComments returns the comments for one ticket, most recent first.
	ListComments(ctx context.Context, ticketKey string) ([]models.TicketComment, error)

	// ListAllComments returns comments across all tickets, most recent
	// first, optionally filtered to ticket keys starting with keyPrefix.
	ListAllComments(ctx context.Context, keyPrefix string) ([]models.TicketComment, error)

	// GetSettings reads the current sync settings.
	GetSettings(ctx context.Context) (models.Settings, error)

	// SetProjectKey normalizes (trim + uppercase) and stores the
	// project key, rejecting empty input with a ValidationError.
	SetProjectKey(ctx context.Context, key string) (string, error)

	// SetSeverity normalizes and stores the severity filter, rejecting
	// values outside the closed enumeration with a ValidationError.
	SetSeverity(ctx context.Context, severity string) (string, error)

	// SetLastSync records the end time of a successful sync run.
	SetLastSync(ctx context.Context, at int64) error

	jira.AccountStore
	jira.StateStore

	Close() error
}
