package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reviewbot/internal/monitor"
	"reviewbot/internal/qa"
)

const (
	defaultExternalHTTPTimeoutSeconds = 30
	defaultDifyTimeoutSeconds         = 360
	defaultPollIntervalSeconds        = 60
	defaultFetchLimit                 = 10
	defaultPruneSchedule              = "0 3 * * *"
	defaultStateMaxAgeDays            = 180
)

type Config struct {
	RedmineURL              string `yaml:"redmine_url"`
	RedmineAPIKey           string `yaml:"redmine_api_key"`
	RedmineFetchLimit       int    `yaml:"redmine_fetch_limit"`
	RedmineRejectedStatusID int    `yaml:"redmine_rejected_status_id"`

	// Reviewer selects who judges answers: "dify" or "anthropic".
	Reviewer string `yaml:"reviewer"`

	DifyAPIURL         string   `yaml:"dify_api_url"`
	DifyAPIKey         string   `yaml:"dify_api_key"`
	DifyLLM            string   `yaml:"dify_llm"`
	DifyUser           string   `yaml:"dify_user"`
	DifyTimeoutSeconds int      `yaml:"dify_timeout_seconds"`
	DifyAttempts       int      `yaml:"dify_attempts"`
	DifyOutputKeys     []string `yaml:"dify_output_keys"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`

	TeamsWebhookURL          string `yaml:"teams_webhook_url"`
	TeamsWebhookSecondaryURL string `yaml:"teams_webhook_secondary_url"`

	// Slack channels accept either an ID or a "#name".
	SlackBotToken           string `yaml:"slack_bot_token"`
	SlackChannelID          string `yaml:"slack_channel_id"`
	SlackSecondaryChannelID string `yaml:"slack_secondary_channel_id"`
	SlackAPIURL             string `yaml:"slack_api_url"`

	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	DBPath              string `yaml:"db_path"`
	StatePruneSchedule  string `yaml:"state_prune_schedule"`
	StateMaxAgeDays     int    `yaml:"state_max_age_days"`

	CaseRoot           string `yaml:"case_root"`
	CaseCleanupEnabled bool   `yaml:"case_cleanup_enabled"`

	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	LogLevel                   string `yaml:"log_level"`
	LogFile                    string `yaml:"log_file"`
	HTTPAddr                   string `yaml:"http_addr"`
	Timezone                   string `yaml:"timezone"`

	CaseIDField     string `yaml:"caseid_field"`
	TrimMode        string `yaml:"trim_mode"`
	MaxChars        int    `yaml:"max_chars"`
	MaxEntries      int    `yaml:"max_entries"`
	OmittedSentinel string `yaml:"omitted_sentinel"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
	// Path is the config file that was read, empty when none was found.
	Path     string         `yaml:"-"`
}

// LoadConfig reads config.yaml (or CONFIG_PATH), applies env overrides and
// defaults, and validates value formats. Credentials needed only by the
// monitor are checked by ValidateMonitor.
func LoadConfig() (Config, error) {
	// Seeded before decoding so an explicit empty value disables pruning.
	cfg := Config{StatePruneSchedule: defaultPruneSchedule}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		cfg.Path = configPath
	}

	var errs []error
	envOverride(&cfg.RedmineURL, "REDMINE_URL")
	envOverride(&cfg.RedmineAPIKey, "REDMINE_API_KEY")
	errs = append(errs, envOverrideInt(&cfg.RedmineFetchLimit, "REDMINE_FETCH_LIMIT"))
	errs = append(errs, envOverrideInt(&cfg.RedmineRejectedStatusID, "REDMINE_REJECTED_STATUS_ID"))
	envOverride(&cfg.Reviewer, "REVIEWER")
	envOverride(&cfg.DifyAPIURL, "DIFY_API_URL")
	envOverride(&cfg.DifyAPIKey, "DIFY_API_KEY")
	envOverride(&cfg.DifyLLM, "DIFY_LLM")
	envOverride(&cfg.DifyUser, "DIFY_USER")
	errs = append(errs, envOverrideInt(&cfg.DifyTimeoutSeconds, "DIFY_TIMEOUT_SECONDS"))
	errs = append(errs, envOverrideInt(&cfg.DifyAttempts, "DIFY_ATTEMPTS"))
	envOverrideList(&cfg.DifyOutputKeys, "DIFY_OUTPUT_KEYS")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.TeamsWebhookURL, "TEAMS_WEBHOOK_URL")
	envOverrideAllowEmpty(&cfg.TeamsWebhookSecondaryURL, "TEAMS_WEBHOOK_SECONDARY_URL")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.SlackSecondaryChannelID, "SLACK_SECONDARY_CHANNEL_ID")
	envOverride(&cfg.SlackAPIURL, "SLACK_API_URL")
	errs = append(errs, envOverrideInt(&cfg.PollIntervalSeconds, "POLL_INTERVAL"))
	errs = append(errs, envOverrideInt(&cfg.PollIntervalSeconds, "POLL_INTERVAL_SECONDS"))
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideAllowEmpty(&cfg.StatePruneSchedule, "STATE_PRUNE_SCHEDULE")
	errs = append(errs, envOverrideInt(&cfg.StateMaxAgeDays, "STATE_MAX_AGE_DAYS"))
	envOverride(&cfg.CaseRoot, "CASE_ROOT")
	envOverrideBool(&cfg.CaseCleanupEnabled, "CASE_CLEANUP_ENABLED")
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFile, "LOG_FILE")
	envOverrideAllowEmpty(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.CaseIDField, "CASEID_FIELD")
	envOverride(&cfg.TrimMode, "TRIM_MODE")
	errs = append(errs, envOverrideInt(&cfg.MaxChars, "MAX_CHARS"))
	errs = append(errs, envOverrideInt(&cfg.MaxEntries, "MAX_ENTRIES"))
	envOverride(&cfg.OmittedSentinel, "OMITTED_SENTINEL")
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RedmineFetchLimit == 0 {
		cfg.RedmineFetchLimit = defaultFetchLimit
	}
	if cfg.Reviewer == "" {
		cfg.Reviewer = "dify"
	}
	cfg.Reviewer = strings.ToLower(strings.TrimSpace(cfg.Reviewer))
	if cfg.DifyAPIURL == "" {
		cfg.DifyAPIURL = "http://localhost:5001/v1/workflows/run"
	}
	if cfg.DifyLLM == "" {
		cfg.DifyLLM = "GPT"
	}
	if cfg.DifyUser == "" {
		cfg.DifyUser = "redmine-monitor"
	}
	if cfg.DifyTimeoutSeconds == 0 {
		cfg.DifyTimeoutSeconds = defaultDifyTimeoutSeconds
	}
	if cfg.DifyAttempts == 0 {
		cfg.DifyAttempts = 1
	}
	if len(cfg.DifyOutputKeys) == 0 {
		cfg.DifyOutputKeys = []string{"text", "text_1", "gpt", "gemma"}
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./reviewbot.db"
	}
	if cfg.StateMaxAgeDays == 0 {
		cfg.StateMaxAgeDays = defaultStateMaxAgeDays
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.TrimMode == "" {
		cfg.TrimMode = string(qa.TrimByChars)
	}
}

func (c *Config) validate() error {
	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	switch c.Reviewer {
	case "dify", "anthropic":
	default:
		return fmt.Errorf("reviewer must be 'dify' or 'anthropic', got '%s'", c.Reviewer)
	}
	switch qa.TrimMode(c.TrimMode) {
	case qa.TrimByChars, qa.TrimByCount:
	default:
		return fmt.Errorf("trim_mode must be 'chars' or 'count', got '%s'", c.TrimMode)
	}
	if c.RedmineFetchLimit < 1 || c.RedmineFetchLimit > 100 {
		return fmt.Errorf("invalid redmine_fetch_limit '%d': must be between 1 and 100", c.RedmineFetchLimit)
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("invalid poll_interval_seconds '%d': must be >= 1", c.PollIntervalSeconds)
	}
	if c.DifyAttempts < 1 {
		return fmt.Errorf("invalid dify_attempts '%d': must be >= 1", c.DifyAttempts)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.StateMaxAgeDays < 1 {
		return fmt.Errorf("invalid state_max_age_days '%d': must be >= 1", c.StateMaxAgeDays)
	}
	if c.MaxChars < 0 || c.MaxEntries < 0 {
		return fmt.Errorf("max_chars and max_entries must not be negative")
	}
	if c.StatePruneSchedule != "" {
		if _, err := monitor.ParseSchedule(c.StatePruneSchedule); err != nil {
			return fmt.Errorf("invalid state_prune_schedule: %w", err)
		}
	}
	if c.CaseCleanupEnabled && c.CaseRoot == "" {
		return fmt.Errorf("case_root is required when case_cleanup_enabled is true")
	}
	return nil
}

// ValidateMonitor checks the settings the polling monitor cannot run without.
func (c Config) ValidateMonitor() error {
	required := []struct{ name, val string }{
		{"redmine_url", c.RedmineURL},
		{"redmine_api_key", c.RedmineAPIKey},
	}
	switch c.Reviewer {
	case "dify":
		required = append(required, struct{ name, val string }{"dify_api_key", c.DifyAPIKey})
	case "anthropic":
		required = append(required, struct{ name, val string }{"anthropic_api_key", c.AnthropicAPIKey})
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config '%s' is not set (via config.yaml or env var)", r.name)
		}
	}
	if !c.TeamsConfigured() && !c.SlackConfigured() {
		return errors.New("no notification destination: set teams_webhook_url or slack_bot_token with slack_channel_id")
	}
	if c.SlackBotToken != "" && c.SlackChannelID == "" {
		return errors.New("slack_bot_token is set but slack_channel_id is not")
	}
	return nil
}

func (c Config) TeamsConfigured() bool { return c.TeamsWebhookURL != "" }

func (c Config) SlackConfigured() bool { return c.SlackBotToken != "" && c.SlackChannelID != "" }

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) StateMaxAge() time.Duration {
	return time.Duration(c.StateMaxAgeDays) * 24 * time.Hour
}

func (c Config) DifyTimeout() time.Duration {
	return time.Duration(c.DifyTimeoutSeconds) * time.Second
}

// QAPolicy builds the engine policy. Unset values fall back to engine defaults.
func (c Config) QAPolicy() qa.Policy {
	p := qa.DefaultPolicy()
	if c.CaseIDField != "" {
		p.CaseIDField = c.CaseIDField
	}
	if c.TrimMode != "" {
		p.TrimMode = qa.TrimMode(c.TrimMode)
	}
	if c.MaxChars > 0 {
		p.MaxChars = c.MaxChars
	}
	if c.MaxEntries > 0 {
		p.MaxEntries = c.MaxEntries
	}
	if c.OmittedSentinel != "" {
		p.OmittedSentinel = c.OmittedSentinel
	}
	return p
}

// MonitorConfig is the monitor's view of the settings.
func (c Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		FetchLimit:       c.RedmineFetchLimit,
		PollInterval:     c.PollInterval(),
		Policy:           c.QAPolicy(),
		RejectedStatusID: c.RedmineRejectedStatusID,
	}
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*field = append(*field, item)
		}
	}
}
