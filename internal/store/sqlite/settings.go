package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielolaszy/incboard/internal/jira"
	"github.com/danielolaszy/incboard/internal/store"
	"github.com/danielolaszy/incboard/pkg/models"
)

// GetSettings reads the keyed settings rows into a Settings value.
// Missing rows yield zero values.
func (s *SQLiteStore) GetSettings(ctx context.Context) (models.Settings, error) {
	var settings models.Settings

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM settings`)
	if err != nil {
		return settings, fmt.Errorf("read settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return settings, fmt.Errorf("scan setting: %w", err)
		}
		switch name {
		case store.SettingProjectKey:
			settings.ProjectKey = value
		case store.SettingSeverity:
			settings.Severity = value
		case store.SettingLastSync:
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				settings.LastSyncAt = ms
			}
		}
	}
	return settings, rows.Err()
}

// SetProjectKey normalizes and stores the project key. Empty input is
// rejected and the stored value left unchanged.
func (s *SQLiteStore) SetProjectKey(ctx context.Context, key string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(key))
	if normalized == "" {
		return "", &store.ValidationError{Field: "project key", Reason: "must not be empty"}
	}
	if err := s.upsertSetting(ctx, store.SettingProjectKey, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SetSeverity normalizes and stores the severity filter. Values outside
// the closed enumeration are rejected and the stored value left unchanged.
func (s *SQLiteStore) SetSeverity(ctx context.Context, severity string) (string, error) {
	normalized := models.NormalizeSeverity(severity)
	if !models.IsSeverity(normalized) {
		return "", &store.ValidationError{
			Field:  "severity",
			Reason: fmt.Sprintf("%q is not one of %s", severity, strings.Join(models.Severities, ", ")),
		}
	}
	if err := s.upsertSetting(ctx, store.SettingSeverity, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SetLastSync records the completion time of a successful sync run.
func (s *SQLiteStore) SetLastSync(ctx context.Context, at int64) error {
	return s.upsertSetting(ctx, store.SettingLastSync, strconv.FormatInt(at, 10))
}

func (s *SQLiteStore) upsertSetting(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, value)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", name, err)
	}
	return nil
}

// GetAccount loads one OAuth account record, nil when absent.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*jira.Account, error) {
	var a jira.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, site_url, cloud_id, access_token, refresh_token, expires_at, scopes
		FROM jira_accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.SiteURL, &a.CloudID, &a.AccessToken, &a.RefreshToken, &a.ExpiresAt, &a.Scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	return &a, nil
}

// SaveAccount upserts one OAuth account record.
func (s *SQLiteStore) SaveAccount(ctx context.Context, account *jira.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jira_accounts (id, site_url, cloud_id, access_token, refresh_token, expires_at, scopes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_url = excluded.site_url,
			cloud_id = excluded.cloud_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scopes = excluded.scopes`,
		account.ID, account.SiteURL, account.CloudID, account.AccessToken,
		account.RefreshToken, account.ExpiresAt, account.Scopes)
	if err != nil {
		return fmt.Errorf("save account %s: %w", account.ID, err)
	}
	return nil
}

// SaveOAuthState stores a state nonce with its expiry.
func (s *SQLiteStore) SaveOAuthState(ctx context.Context, state *jira.OAuthState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, expires_at) VALUES (?, ?)
		ON CONFLICT(state) DO UPDATE SET expires_at = excluded.expires_at`,
		state.State, state.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// GetOAuthState loads a state nonce, nil when unknown.
func (s *SQLiteStore) GetOAuthState(ctx context.Context, state string) (*jira.OAuthState, error) {
	var rec jira.OAuthState
	err := s.db.QueryRowContext(ctx,
		`SELECT state, expires_at FROM oauth_states WHERE state = ?`, state).
		Scan(&rec.State, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	return &rec, nil
}

// DeleteOAuthState removes a consumed (or expired) state nonce.
func (s *SQLiteStore) DeleteOAuthState(ctx context.Context, state string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = ?`, state); err != nil {
		return fmt.Errorf("delete oauth state: %w", err)
	}
	return nil
}
