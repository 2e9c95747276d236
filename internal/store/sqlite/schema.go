package sqlite

// schema is executed on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	key         TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'Unknown',
	priority    TEXT NOT NULL DEFAULT 'Unspecified',
	assignee    TEXT NOT NULL DEFAULT 'Unassigned',
	service     TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT 'jira',
	updated_at  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tickets_updated_at ON tickets(updated_at);

CREATE TABLE IF NOT EXISTS ticket_comments (
	jira_comment_id TEXT PRIMARY KEY,
	ticket_key      TEXT NOT NULL,
	author          TEXT NOT NULL DEFAULT 'Unknown',
	body            TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_comments_ticket_key ON ticket_comments(ticket_key);
CREATE INDEX IF NOT EXISTS idx_comments_updated_at ON ticket_comments(updated_at);

CREATE TABLE IF NOT EXISTS settings (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jira_accounts (
	id            TEXT PRIMARY KEY,
	site_url      TEXT NOT NULL DEFAULT '',
	cloud_id      TEXT NOT NULL DEFAULT '',
	access_token  TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at    INTEGER NOT NULL DEFAULT 0,
	scopes        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS oauth_states (
	state      TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
`
