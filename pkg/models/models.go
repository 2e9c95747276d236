// Package models defines data structures shared across the application.
package models

import (
	"regexp"
	"strings"
)

// Ticket is the local mirror of one Jira issue. The issue key is the
// natural key: the mirror holds at most one row per key.
type Ticket struct {
	// Key is the project-prefixed issue code (e.g. "INC-1042")
	Key string `json:"key"`

	// Title is the issue summary, falling back to the key when absent
	Title string `json:"title"`

	// Description is the issue description flattened to plain text
	Description string `json:"description"`

	// Status is the Jira status name ("Unknown" when absent)
	Status string `json:"status"`

	// Priority is the Jira priority name ("Unspecified" when absent)
	Priority string `json:"priority"`

	// Assignee is the assignee display name ("Unassigned" when absent)
	Assignee string `json:"assignee"`

	// Service is the project key the ticket belongs to
	Service string `json:"service,omitempty"`

	// Summary is the truncated description shown on ticket cards
	Summary string `json:"summary,omitempty"`

	// URL is the browse link on the Jira site
	URL string `json:"url,omitempty"`

	// Source tags the origin system; always "jira" for synced rows
	Source string `json:"source,omitempty"`

	// UpdatedAt is Jira's updated timestamp in epoch milliseconds,
	// or the sync time when Jira did not report one
	UpdatedAt int64 `json:"updatedAt"`
}

// TicketComment is the local mirror of one Jira comment. Comments are
// keyed by the remote comment id and associated to a ticket by key; the
// association is denormalized, not an ownership pointer.
type TicketComment struct {
	// JiraCommentID is the remote comment id, unique across the mirror
	JiraCommentID string `json:"jiraCommentId"`

	// TicketKey is the issue key the comment belongs to
	TicketKey string `json:"ticketKey"`

	// Author is the comment author's display name ("Unknown" when absent)
	Author string `json:"author"`

	// Body is the comment body flattened to plain text
	Body string `json:"body"`

	// CreatedAt is the comment creation time in epoch milliseconds
	CreatedAt int64 `json:"createdAt"`

	// UpdatedAt is the comment update time in epoch milliseconds
	UpdatedAt int64 `json:"updatedAt"`
}

// Settings holds the user-configurable sync settings.
type Settings struct {
	// ProjectKey is the Jira project mirrored by the sync job,
	// stored trimmed and uppercased
	ProjectKey string `json:"projectKey"`

	// Severity is the board's presentation-layer severity filter
	Severity string `json:"severity"`

	// LastSyncAt is the end time of the last successful sync run
	// in epoch milliseconds, zero if no run has completed
	LastSyncAt int64 `json:"lastSyncAt"`
}

// SyncStatus describes the mirror's connection state for the dashboard.
type SyncStatus struct {
	Connected  bool   `json:"connected"`
	SiteURL    string `json:"siteUrl,omitempty"`
	ProjectKey string `json:"projectKey,omitempty"`
	LastSyncAt int64  `json:"lastSyncAt,omitempty"`
}

// Severities is the closed set of accepted severity filter values.
var Severities = []string{"ALL", "P1", "P2", "P3", "P4"}

// NormalizeSeverity trims and uppercases a severity value for comparison
// against Severities.
func NormalizeSeverity(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// IsSeverity reports whether value is a member of Severities.
// The comparison is exact; callers normalize case first.
func IsSeverity(value string) bool {
	for _, s := range Severities {
		if value == s {
			return true
		}
	}
	return false
}

// severityMatchers maps each concrete severity to the Jira priority
// names it covers. Priority schemes rarely name priorities "P1".."P4"
// literally; the default Jira scheme uses Highest..Lowest and incident
// workflows use Sev N / Critical, so each severity matches those too.
var severityMatchers = map[string][]*regexp.Regexp{
	"P1": compileMatchers(`p\s*1`, `priority\s*1`, `sev\s*1`, `critical`, `highest`),
	"P2": compileMatchers(`p\s*2`, `priority\s*2`, `sev\s*2`, `^high$`, `major`),
	"P3": compileMatchers(`p\s*3`, `priority\s*3`, `sev\s*3`, `medium`, `moderate`),
	"P4": compileMatchers(`p\s*4`, `priority\s*4`, `sev\s*4`, `^low$`, `lowest`, `minor`, `trivial`),
}

func compileMatchers(patterns ...string) []*regexp.Regexp {
	matchers := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		matchers[i] = regexp.MustCompile(`(?i)` + p)
	}
	return matchers
}

// MatchesSeverity reports whether a ticket's priority name falls under
// the given severity filter. "ALL" and the empty filter match every
// priority.
func MatchesSeverity(priority, severity string) bool {
	severity = NormalizeSeverity(severity)
	if severity == "" || severity == "ALL" {
		return true
	}
	for _, m := range severityMatchers[severity] {
		if m.MatchString(priority) {
			return true
		}
	}
	return false
}
