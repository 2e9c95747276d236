package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// refreshMargin is the safety window before token expiry within which a
// refresh is forced, so a token cannot expire mid-request.
const refreshMargin = 2 * time.Minute

// AuthError is a credential or token refresh failure. It fails the
// whole sync run; a run must never proceed with a stale token.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jira auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("jira auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// CredentialProvider produces the Authorization header value for one
// outbound Jira call.
type CredentialProvider interface {
	AuthHeader(ctx context.Context) (string, error)
}

// PATCredentials authenticates with a static email + API token pair
// using Basic authentication. This is the steady-state single-tenant
// resolver; configuration validation happens before construction.
type PATCredentials struct {
	Email string
	Token string
}

// AuthHeader returns the Basic authorization header for the PAT pair.
func (p *PATCredentials) AuthHeader(_ context.Context) (string, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(p.Email + ":" + p.Token))
	return "Basic " + encoded, nil
}

// Account is a persisted per-account OAuth token record.
type Account struct {
	// ID is the Atlassian account id resolved during the OAuth flow
	ID string

	// SiteURL is the Jira site granted to this account
	SiteURL string

	// CloudID is the Atlassian cloud resource id
	CloudID string

	AccessToken  string
	RefreshToken string

	// ExpiresAt is the access token expiry in epoch milliseconds
	ExpiresAt int64

	// Scopes is the space-joined list of granted scopes
	Scopes string
}

// AccountStore persists OAuth account records.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	SaveAccount(ctx context.Context, account *Account) error
}

// OAuthCredentials resolves a bearer token for one stored account,
// refreshing it through the refresh-token grant when it is within the
// safety margin of expiry. The refreshed tokens are persisted before
// the header is handed out, so a crash mid-run cannot silently lose
// them (persist-then-use ordering).
type OAuthCredentials struct {
	AccountID    string
	Accounts     AccountStore
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client
	Now          func() time.Time
}

// AuthHeader returns a Bearer header backed by a non-expired token.
func (o *OAuthCredentials) AuthHeader(ctx context.Context) (string, error) {
	account, err := o.Accounts.GetAccount(ctx, o.AccountID)
	if err != nil {
		return "", &AuthError{Reason: fmt.Sprintf("load account %s", o.AccountID), Err: err}
	}
	if account == nil {
		return "", &AuthError{Reason: fmt.Sprintf("account %s not connected", o.AccountID)}
	}

	now := o.now()
	if account.ExpiresAt-now.UnixMilli() < refreshMargin.Milliseconds() {
		if err := o.refresh(ctx, account); err != nil {
			return "", err
		}
	}

	return "Bearer " + account.AccessToken, nil
}

func (o *OAuthCredentials) refresh(ctx context.Context, account *Account) error {
	if account.RefreshToken == "" {
		return &AuthError{Reason: fmt.Sprintf("account %s has no refresh token", account.ID)}
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     o.ClientID,
		"client_secret": o.ClientSecret,
		"refresh_token": account.RefreshToken,
	})
	if err != nil {
		return &AuthError{Reason: "marshal refresh request", Err: err}
	}

	tokenURL := o.TokenURL
	if tokenURL == "" {
		tokenURL = AuthBase + "/oauth/token"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return &AuthError{Reason: "create refresh request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client().Do(req)
	if err != nil {
		return &AuthError{Reason: "token refresh request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Reason: "read refresh response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{
			Reason: fmt.Sprintf("token refresh rejected with %d: %s", resp.StatusCode, string(body)),
		}
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return &AuthError{Reason: "parse refresh response", Err: err}
	}

	account.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	if token.Scope != "" {
		account.Scopes = token.Scope
	}
	account.ExpiresAt = o.now().Add(time.Duration(token.ExpiresIn) * time.Second).UnixMilli()

	// Persist before any caller uses the token.
	if err := o.Accounts.SaveAccount(ctx, account); err != nil {
		return &AuthError{Reason: fmt.Sprintf("persist refreshed token for %s", account.ID), Err: err}
	}

	return nil
}

func (o *OAuthCredentials) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o *OAuthCredentials) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
