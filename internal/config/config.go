// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MissingVarError reports a required environment variable that was not set.
type MissingVarError struct {
	Var string
}

func (e *MissingVarError) Error() string {
	return fmt.Sprintf("missing required environment variable: %s", e.Var)
}

// Config holds all configuration parameters for the application. It is
// constructed once at process start and injected into whatever needs it;
// nothing below the entry point reads the environment directly.
type Config struct {
	Jira  JiraConfig
	OAuth OAuthConfig

	// DBPath is the SQLite database file backing the local mirror.
	DBPath string

	// LogFile enables rotating file logging when set.
	LogFile string

	// HTTPAddr is the listen address for the serve command.
	HTTPAddr string

	// SyncInterval is the cadence of the scheduler loop.
	SyncInterval time.Duration

	// RequestTimeout bounds each outbound Jira HTTP call.
	RequestTimeout time.Duration

	// RunTimeout bounds one complete sync pass.
	RunTimeout time.Duration
}

// JiraConfig holds JIRA site and PAT credential configuration.
type JiraConfig struct {
	SiteURL           string
	PATEmail          string
	PATToken          string
	DefaultProjectKey string
}

// OAuthConfig holds the optional OAuth application configuration used by
// the multi-tenant credential resolver.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	SuccessURL   string
}

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("jira.site.url", "JIRA_SITE_URL")
	v.BindEnv("jira.pat.email", "JIRA_PAT_EMAIL")
	v.BindEnv("jira.pat.token", "JIRA_PAT_TOKEN")
	v.BindEnv("jira.project.key", "JIRA_PROJECT_KEY")
	v.BindEnv("jira.client.id", "JIRA_CLIENT_ID")
	v.BindEnv("jira.client.secret", "JIRA_CLIENT_SECRET")
	v.BindEnv("jira.oauth.callback.url", "JIRA_OAUTH_CALLBACK_URL")
	v.BindEnv("jira.oauth.scopes", "JIRA_OAUTH_SCOPES")
	v.BindEnv("jira.oauth.success.url", "JIRA_OAUTH_SUCCESS_URL")
	v.BindEnv("incboard.db", "INCBOARD_DB")
	v.BindEnv("incboard.log.file", "INCBOARD_LOG_FILE")
	v.BindEnv("incboard.http.addr", "INCBOARD_HTTP_ADDR")
	v.BindEnv("incboard.sync.interval", "INCBOARD_SYNC_INTERVAL")
	v.BindEnv("incboard.request.timeout", "INCBOARD_REQUEST_TIMEOUT")
	v.BindEnv("incboard.run.timeout", "INCBOARD_RUN_TIMEOUT")

	v.SetDefault("incboard.db", "incboard.db")
	v.SetDefault("incboard.http.addr", ":8484")
	v.SetDefault("incboard.sync.interval", "3m")
	v.SetDefault("incboard.request.timeout", "30s")
	v.SetDefault("incboard.run.timeout", "5m")

	config := &Config{
		Jira: JiraConfig{
			SiteURL:           strings.TrimSuffix(v.GetString("jira.site.url"), "/"),
			PATEmail:          v.GetString("jira.pat.email"),
			PATToken:          v.GetString("jira.pat.token"),
			DefaultProjectKey: strings.ToUpper(strings.TrimSpace(v.GetString("jira.project.key"))),
		},
		OAuth: OAuthConfig{
			ClientID:     v.GetString("jira.client.id"),
			ClientSecret: v.GetString("jira.client.secret"),
			CallbackURL:  v.GetString("jira.oauth.callback.url"),
			Scopes:       splitScopes(v.GetString("jira.oauth.scopes")),
			SuccessURL:   v.GetString("jira.oauth.success.url"),
		},
		DBPath:         v.GetString("incboard.db"),
		LogFile:        v.GetString("incboard.log.file"),
		HTTPAddr:       v.GetString("incboard.http.addr"),
		SyncInterval:   v.GetDuration("incboard.sync.interval"),
		RequestTimeout: v.GetDuration("incboard.request.timeout"),
		RunTimeout:     v.GetDuration("incboard.run.timeout"),
	}

	return config, nil
}

// ValidatePAT ensures the PAT credential configuration is complete. The
// sync run must fail loudly, naming the variable, rather than proceed
// with a silent default.
func ValidatePAT(config *Config) error {
	if config.Jira.SiteURL == "" {
		return &MissingVarError{Var: "JIRA_SITE_URL"}
	}
	if config.Jira.PATEmail == "" {
		return &MissingVarError{Var: "JIRA_PAT_EMAIL"}
	}
	if config.Jira.PATToken == "" {
		return &MissingVarError{Var: "JIRA_PAT_TOKEN"}
	}
	return nil
}

// ValidateOAuth ensures the OAuth application configuration is complete.
func ValidateOAuth(config *Config) error {
	if config.OAuth.ClientID == "" {
		return &MissingVarError{Var: "JIRA_CLIENT_ID"}
	}
	if config.OAuth.ClientSecret == "" {
		return &MissingVarError{Var: "JIRA_CLIENT_SECRET"}
	}
	if config.OAuth.CallbackURL == "" {
		return &MissingVarError{Var: "JIRA_OAUTH_CALLBACK_URL"}
	}
	return nil
}

func splitScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}
