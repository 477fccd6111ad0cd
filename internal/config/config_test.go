package config

import (
	"os"
	"path/filepath"
	"surveysync/internal/coordinator"
	"surveysync/internal/mailchimp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeFile(t testing.TB, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0644)
	if err != nil {
		t.Fatal(err)
	}
}

func clearEnv(t *testing.T) {
	for _, key := range []string{EnvDc, EnvApiKey, EnvSurveyId} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"), false)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(Default(), cfg))
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json5"), true)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMergesFileLocalAndEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "surveysync.json5")
	writeFile(t, path, `{
		// committed settings
		mailchimp: { dc: "us3", survey_id: "3410", api_key: "from-file" },
		concurrency: 2,
	}`)
	writeFile(t, filepath.Join(dir, "surveysync.local.json5"), `{
		mailchimp: { api_key: "from-local" },
		cooldown: "0s",
	}`)
	t.Setenv(EnvSurveyId, "9999")

	cfg, err := Load(path, true)
	require.NoError(t, err)

	expected := Default()
	expected.Mailchimp.Dc = "us3"
	expected.Mailchimp.SurveyId = "9999"
	expected.Mailchimp.ApiKey = "from-local"
	expected.Concurrency = 2
	expected.Cooldown = "0s"
	require.Empty(t, cmp.Diff(expected, cfg))
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvIgnoresEmpty(t *testing.T) {
	cfg := Default()
	cfg.Mailchimp.ApiKey = "kept"

	env := map[string]string{EnvApiKey: "", EnvDc: "us9"}
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	require.Equal(t, "kept", cfg.Mailchimp.ApiKey)
	require.Equal(t, "us9", cfg.Mailchimp.Dc)
	require.Empty(t, cfg.Mailchimp.SurveyId)
}

func validConfig() Config {
	cfg := Default()
	cfg.Mailchimp.Dc = "us3"
	cfg.Mailchimp.ApiKey = "key"
	cfg.Mailchimp.SurveyId = "3410"
	return cfg
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
		errors []string
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:   "base url instead of dc",
			modify: func(c *Config) { c.Mailchimp.Dc = ""; c.Mailchimp.BaseUrl = "http://localhost:8080" },
		},
		{
			name: "missing credentials",
			modify: func(c *Config) {
				c.Mailchimp.ApiKey = ""
				c.Mailchimp.SurveyId = ""
				c.Mailchimp.Dc = ""
			},
			errors: []string{"api_key is required", "survey_id is required", "dc or mailchimp.base_url"},
		},
		{
			name:   "malformed survey id",
			modify: func(c *Config) { c.Mailchimp.SurveyId = "../x" },
			errors: []string{"survey_id is malformed"},
		},
		{
			name:   "zero concurrency",
			modify: func(c *Config) { c.Concurrency = 0 },
			errors: []string{"concurrency must be at least 1"},
		},
		{
			name:   "negative cooldown",
			modify: func(c *Config) { c.Cooldown = "-1s" },
			errors: []string{"cooldown: must not be negative"},
		},
		{
			name:   "unparsable durations",
			modify: func(c *Config) { c.Cooldown = "soon"; c.Mailchimp.Timeout = "later" },
			errors: []string{"cooldown:", "mailchimp.timeout:"},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			cfg := validConfig()
			test.modify(&cfg)

			err := cfg.Validate()
			if len(test.errors) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, msg := range test.errors {
				require.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Mailchimp.Timeout = "30s"

	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(mailchimp.ClientOptions{
		BaseUrl:           "https://us3.api.mailchimp.com/3.0",
		ApiKey:            "key",
		SurveyId:          "3410",
		RequestsPerSecond: mailchimp.DefaultRequestsPerSecond,
		Timeout:           30 * time.Second,
	}, opts))

	cfg.Mailchimp.BaseUrl = "http://127.0.0.1:9000"
	opts, err = cfg.ClientOptions()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9000", opts.BaseUrl)
}

func TestCoordinatorOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Concurrency = 7
	cfg.Cooldown = "250ms"

	opts, err := cfg.CoordinatorOptions()
	require.NoError(t, err)
	require.Equal(t, coordinator.Options{Concurrency: 7, Cooldown: 250 * time.Millisecond}, opts)
}

func TestHistoryEnabled(t *testing.T) {
	cfg := validConfig()
	require.True(t, cfg.HistoryEnabled())

	cfg.History = HistoryOff
	require.False(t, cfg.HistoryEnabled())

	cfg.History = ""
	require.False(t, cfg.HistoryEnabled())
}
