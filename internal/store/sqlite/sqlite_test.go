package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/incboard/internal/store"
	"github.com/danielolaszy/incboard/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func ticket(key string, updatedAt int64) models.Ticket {
	return models.Ticket{
		Key:       key,
		Title:     "title " + key,
		Status:    "Open",
		Priority:  "P2",
		Assignee:  "Unassigned",
		Source:    "jira",
		UpdatedAt: updatedAt,
	}
}

func comment(id, ticketKey, body string, updatedAt int64) models.TicketComment {
	return models.TicketComment{
		JiraCommentID: id,
		TicketKey:     ticketKey,
		Author:        "A. Okafor",
		Body:          body,
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
}

func TestUpsertTicketsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	batch := []models.Ticket{ticket("INC-1", 100), ticket("INC-2", 200)}
	require.NoError(t, st.UpsertTickets(ctx, batch))

	first, err := st.ListTickets(ctx, "")
	require.NoError(t, err)

	require.NoError(t, st.UpsertTickets(ctx, batch))
	second, err := st.ListTickets(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
}

func TestUpsertTicketsOverwritesAllFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	original := ticket("INC-1", 100)
	original.Description = "old description"
	original.Summary = "old summary"
	require.NoError(t, st.UpsertTickets(ctx, []models.Ticket{original}))

	// Full replace, not merge: fields absent from the new payload are
	// not preserved from the old row.
	replacement := models.Ticket{Key: "INC-1", Title: "new title", Status: "Resolved",
		Priority: "P1", Assignee: "J. Chen", Source: "jira", UpdatedAt: 300}
	require.NoError(t, st.UpsertTickets(ctx, []models.Ticket{replacement}))

	tickets, err := st.ListTickets(ctx, "")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, replacement, tickets[0])
	assert.Empty(t, tickets[0].Description)
}

func TestUpsertTicketsDuplicateKeyLastWriteWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := ticket("INC-1", 100)
	first.Title = "first"
	second := ticket("INC-1", 200)
	second.Title = "second"

	require.NoError(t, st.UpsertTickets(ctx, []models.Ticket{first, second}))

	tickets, err := st.ListTickets(ctx, "")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "second", tickets[0].Title)
	assert.Equal(t, int64(200), tickets[0].UpdatedAt)
}

func TestListTicketsOrderAndPrefix(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertTickets(ctx, []models.Ticket{
		ticket("INC-1", 100),
		ticket("INC-2", 300),
		ticket("OPS-9", 200),
	}))

	all, err := st.ListTickets(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "INC-2", all[0].Key)
	assert.Equal(t, "OPS-9", all[1].Key)
	assert.Equal(t, "INC-1", all[2].Key)

	inc, err := st.ListTickets(ctx, "INC-")
	require.NoError(t, err)
	require.Len(t, inc, 2)
	for _, tk := range inc {
		assert.Contains(t, tk.Key, "INC-")
	}

	none, err := st.ListTickets(ctx, "OPS2-")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReconcileCommentsConvergence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Stored set {c1, c2, c3}.
	require.NoError(t, st.ReconcileComments(ctx, "INC-1", []models.TicketComment{
		comment("c1", "INC-1", "one", 10),
		comment("c2", "INC-1", "two", 20),
		comment("c3", "INC-1", "three", 30),
	}))

	// Jira now reports {c2 (edited), c3, c4}.
	require.NoError(t, st.ReconcileComments(ctx, "INC-1", []models.TicketComment{
		comment("c2", "INC-1", "two edited", 40),
		comment("c3", "INC-1", "three", 30),
		comment("c4", "INC-1", "four", 50),
	}))

	comments, err := st.ListComments(ctx, "INC-1")
	require.NoError(t, err)
	require.Len(t, comments, 3)

	byID := map[string]models.TicketComment{}
	for _, c := range comments {
		byID[c.JiraCommentID] = c
	}
	assert.NotContains(t, byID, "c1", "c1 was pruned")
	assert.Equal(t, "two edited", byID["c2"].Body)
	assert.Equal(t, "three", byID["c3"].Body)
	assert.Equal(t, "four", byID["c4"].Body)
}

func TestReconcileCommentsEmptyListPrunesAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReconcileComments(ctx, "INC-1", []models.TicketComment{
		comment("c1", "INC-1", "one", 10),
	}))
	require.NoError(t, st.ReconcileComments(ctx, "INC-1", nil))

	comments, err := st.ListComments(ctx, "INC-1")
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestReconcileCommentsScopedToTicket(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReconcileComments(ctx, "INC-1", []models.TicketComment{
		comment("c1", "INC-1", "one", 10),
	}))
	require.NoError(t, st.ReconcileComments(ctx, "INC-2", []models.TicketComment{
		comment("c2", "INC-2", "two", 20),
	}))

	// Reconciling INC-2 must never prune INC-1's comments.
	require.NoError(t, st.ReconcileComments(ctx, "INC-2", nil))

	survivors, err := st.ListComments(ctx, "INC-1")
	require.NoError(t, err)
	assert.Len(t, survivors, 1)
}

func TestListAllCommentsOrderAndPrefix(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReconcileComments(ctx, "INC-1", []models.TicketComment{
		comment("c1", "INC-1", "one", 10),
		comment("c2", "INC-1", "two", 30),
	}))
	require.NoError(t, st.ReconcileComments(ctx, "OPS-9", []models.TicketComment{
		comment("c3", "OPS-9", "three", 20),
	}))

	all, err := st.ListAllComments(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c2", all[0].JiraCommentID)
	assert.Equal(t, "c3", all[1].JiraCommentID)
	assert.Equal(t, "c1", all[2].JiraCommentID)

	inc, err := st.ListAllComments(ctx, "INC-")
	require.NoError(t, err)
	assert.Len(t, inc, 2)
}

func TestSettings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings.ProjectKey)
	assert.Zero(t, settings.LastSyncAt)

	normalized, err := st.SetProjectKey(ctx, "  inc ")
	require.NoError(t, err)
	assert.Equal(t, "INC", normalized)

	_, err = st.SetProjectKey(ctx, "   ")
	var validationErr *store.ValidationError
	require.ErrorAs(t, err, &validationErr)

	require.NoError(t, st.SetLastSync(ctx, 12345))

	settings, err = st.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INC", settings.ProjectKey)
	assert.Equal(t, int64(12345), settings.LastSyncAt)
}

func TestSetSeverity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "lowercase normalizes", input: "p1", want: "P1"},
		{name: "all", input: "ALL", want: "ALL"},
		{name: "padded", input: " p4 ", want: "P4"},
		{name: "unknown severity", input: "P9", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.SetSeverity(ctx, tt.input)
			if tt.wantErr {
				var validationErr *store.ValidationError
				require.ErrorAs(t, err, &validationErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetSeverityRejectionLeavesValueUnchanged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.SetSeverity(ctx, "p1")
	require.NoError(t, err)

	_, err = st.SetSeverity(ctx, "P9")
	require.Error(t, err)

	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P1", settings.Severity)
}
