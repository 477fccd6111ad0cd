// Package config resolves the settings of a surveysync run out of the config
// file, its local override, the environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"surveysync/internal/cache"
	"surveysync/internal/coordinator"
	"surveysync/internal/mailchimp"
	"surveysync/lib/configutil"
	"surveysync/lib/telemetry"
	"time"
)

const DefaultPath = "surveysync.json5"

// HistoryOff as the history path disables recording runs.
const HistoryOff = "off"

// environment variables that override the config file
const (
	EnvDc       = "DC"
	EnvApiKey   = "API_KEY"
	EnvSurveyId = "SURVEY_ID"
)

type MailchimpConfig struct {
	Dc       string `json:"dc"`
	ApiKey   string `json:"api_key"`
	SurveyId string `json:"survey_id"`
	// BaseUrl takes precedence over Dc, it exists mostly for pointing the
	// client at a mock server.
	BaseUrl           string  `json:"base_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Timeout           string  `json:"timeout"`
	// DumpDir is where every http exchange is written to, empty disables it.
	DumpDir string `json:"dump_dir"`
}

type Config struct {
	Mailchimp   MailchimpConfig  `json:"mailchimp"`
	CacheDir    string           `json:"cache_dir"`
	Concurrency int              `json:"concurrency"`
	Cooldown    string           `json:"cooldown"`
	// History is a sqlite file or libsql url runs are recorded in.
	History   string           `json:"history"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func Default() Config {
	return Config{
		Mailchimp: MailchimpConfig{
			RequestsPerSecond: mailchimp.DefaultRequestsPerSecond,
			Timeout:           mailchimp.DefaultTimeout.String(),
		},
		CacheDir:    "responses",
		Concurrency: coordinator.DefaultConcurrency,
		Cooldown:    coordinator.DefaultCooldown.String(),
		History:     "surveysync.db",
	}
}

func (c Config) HistoryEnabled() bool {
	return c.History != "" && c.History != HistoryOff
}

// Load reads the config file at `path` (and its local override) over the
// defaults and applies the environment overrides. A missing file is only an
// error if `mustExist` is set.
func Load(path string, mustExist bool) (Config, error) {
	fromFile, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) && !mustExist {
		err = nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := configutil.MergeOnto(Default(), fromFile)
	if err != nil {
		return Config{}, fmt.Errorf("merge config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides the mailchimp settings with the non-empty variables
// among DC, API_KEY and SURVEY_ID.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDc); ok && v != "" {
		c.Mailchimp.Dc = v
	}
	if v, ok := lookup(EnvApiKey); ok && v != "" {
		c.Mailchimp.ApiKey = v
	}
	if v, ok := lookup(EnvSurveyId); ok && v != "" {
		c.Mailchimp.SurveyId = v
	}
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", name, value)
	}
	return d, nil
}

// Validate returns every problem with the config joined together.
func (c Config) Validate() error {
	var errs []error

	if c.Mailchimp.ApiKey == "" {
		errs = append(errs, fmt.Errorf("mailchimp.api_key is required (or set %s)", EnvApiKey))
	}
	if c.Mailchimp.SurveyId == "" {
		errs = append(errs, fmt.Errorf("mailchimp.survey_id is required (or set %s)", EnvSurveyId))
	} else if !cache.ValidId(c.Mailchimp.SurveyId) {
		errs = append(errs, fmt.Errorf("mailchimp.survey_id is malformed: %q", c.Mailchimp.SurveyId))
	}
	if c.Mailchimp.Dc == "" && c.Mailchimp.BaseUrl == "" {
		errs = append(errs, fmt.Errorf("mailchimp.dc or mailchimp.base_url is required (or set %s)", EnvDc))
	}
	if c.Mailchimp.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("mailchimp.requests_per_second must not be negative"))
	}
	if c.Mailchimp.Timeout != "" {
		_, err := parseDuration("mailchimp.timeout", c.Mailchimp.Timeout)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.CacheDir == "" {
		errs = append(errs, fmt.Errorf("cache_dir is required"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	_, err := parseDuration("cooldown", c.Cooldown)
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ClientOptions returns the options for the mailchimp client, the config
// is expected to have been validated.
func (c Config) ClientOptions() (mailchimp.ClientOptions, error) {
	baseUrl := c.Mailchimp.BaseUrl
	if baseUrl == "" {
		baseUrl = mailchimp.BaseUrlForDc(c.Mailchimp.Dc)
	}

	var timeout time.Duration
	if c.Mailchimp.Timeout != "" {
		var err error
		timeout, err = parseDuration("mailchimp.timeout", c.Mailchimp.Timeout)
		if err != nil {
			return mailchimp.ClientOptions{}, err
		}
	}

	return mailchimp.ClientOptions{
		BaseUrl:           baseUrl,
		ApiKey:            c.Mailchimp.ApiKey,
		SurveyId:          c.Mailchimp.SurveyId,
		RequestsPerSecond: c.Mailchimp.RequestsPerSecond,
		Timeout:           timeout,
	}, nil
}

func (c Config) CoordinatorOptions() (coordinator.Options, error) {
	cooldown, err := parseDuration("cooldown", c.Cooldown)
	if err != nil {
		return coordinator.Options{}, err
	}
	return coordinator.Options{
		Concurrency: c.Concurrency,
		Cooldown:    cooldown,
	}, nil
}
