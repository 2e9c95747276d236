package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Atlassian OAuth endpoints. Authorization and token exchange run
// against the auth host; resource and identity lookups against the API
// host.
const (
	AuthBase = "https://auth.atlassian.com"
	APIBase  = "https://api.atlassian.com"
)

// stateTTL bounds how long an authorization redirect may take before
// its state nonce is rejected.
const stateTTL = 10 * time.Minute

// OAuthState is a short-lived record correlating an authorization
// redirect with the session that initiated it. Consumed exactly once.
type OAuthState struct {
	State     string
	ExpiresAt int64
}

// StateStore persists OAuth state nonces.
type StateStore interface {
	SaveOAuthState(ctx context.Context, state *OAuthState) error
	GetOAuthState(ctx context.Context, state string) (*OAuthState, error)
	DeleteOAuthState(ctx context.Context, state string) error
}

// Flow drives the three-legged OAuth handshake for connecting a Jira
// account: Begin produces the authorization URL, Complete consumes the
// redirect callback.
type Flow struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	States     StateStore
	Accounts   AccountStore
	HTTPClient *http.Client
	Now        func() time.Time

	// AuthBaseURL and APIBaseURL override the Atlassian hosts in tests.
	AuthBaseURL string
	APIBaseURL  string
}

func (f *Flow) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		RedirectURL:  f.CallbackURL,
		Scopes:       f.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.authBase() + "/authorize",
			TokenURL:  f.authBase() + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Begin stores a fresh state nonce and returns the authorization URL to
// redirect the user to.
func (f *Flow) Begin(ctx context.Context) (string, error) {
	state := uuid.NewString()
	record := &OAuthState{
		State:     state,
		ExpiresAt: f.now().Add(stateTTL).UnixMilli(),
	}
	if err := f.States.SaveOAuthState(ctx, record); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}

	authURL := f.oauthConfig().AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.AccessTypeOffline,
	)
	return authURL, nil
}

// Complete validates the callback state, exchanges the authorization
// code for tokens, resolves the accessible Jira site and the account
// identity, persists the account, and deletes the consumed state.
func (f *Flow) Complete(ctx context.Context, code, state string) (*Account, error) {
	record, err := f.States.GetOAuthState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	if record == nil || record.ExpiresAt < f.now().UnixMilli() {
		if record != nil {
			// Abandoned handshakes would otherwise accumulate rows.
			_ = f.States.DeleteOAuthState(ctx, state)
		}
		return nil, &AuthError{Reason: "oauth state expired or unknown"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client())
	token, err := f.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Reason: "authorization code exchange", Err: err}
	}

	resource, err := f.firstAccessibleResource(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	accountID, err := f.resolveAccountID(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:           accountID,
		SiteURL:      resource.URL,
		CloudID:      resource.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.UnixMilli(),
		Scopes:       joinScopes(resource.Scopes),
	}
	if err := f.Accounts.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("persist account: %w", err)
	}

	if err := f.States.DeleteOAuthState(ctx, state); err != nil {
		return nil, fmt.Errorf("delete consumed oauth state: %w", err)
	}

	return account, nil
}

type accessibleResource struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

func (f *Flow) firstAccessibleResource(ctx context.Context, accessToken string) (*accessibleResource, error) {
	var resources []accessibleResource
	url := f.apiBase() + "/oauth/token/accessible-resources"
	if err := f.getJSON(ctx, url, accessToken, &resources); err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, &AuthError{Reason: "no accessible jira resources granted"}
	}
	return &resources[0], nil
}

func (f *Flow) resolveAccountID(ctx context.Context, accessToken string) (string, error) {
	var me struct {
		AccountID string `json:"account_id"`
	}
	if err := f.getJSON(ctx, f.apiBase()+"/me", accessToken, &me); err != nil {
		return "", err
	}
	if me.AccountID == "" {
		return "", &AuthError{Reason: "identity endpoint returned no account id"}
	}
	return me.AccountID, nil
}

func (f *Flow) getJSON(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return json.Unmarshal(body, out)
}

func (f *Flow) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *Flow) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Flow) authBase() string {
	if f.AuthBaseURL != "" {
		return f.AuthBaseURL
	}
	return AuthBase
}

func (f *Flow) apiBase() string {
	if f.APIBaseURL != "" {
		return f.APIBaseURL
	}
	return APIBase
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
