package config

import (
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
)

const keboolaConfig = `{
	"parameters": {
		"#api_token": "${HS_TEST_TOKEN}",
		"period_from": "3 days ago",
		"endpoints": ["deals"],
		"deal_properties": " dealname, amount ,,dealname",
		"print_rows": true,
		"advanced": {
			"max_retries": 3,
			"backoff_initial": "10ms",
			"buffer_size": "16KB",
			"compression": "gzip"
		}
	}
}`

func TestLoadFs(t *testing.T) {
	t.Setenv("HS_TEST_TOKEN", "secret")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/config.json", []byte(keboolaConfig), 0o644))

	var cfg Config
	require.NoError(t, LoadFs(fs, "/data/config.json", &cfg))
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	p := cfg.Parameters
	assert.Equal(t, "secret", p.APIToken)
	assert.Equal(t, []string{"deals"}, p.Endpoints)
	assert.Equal(t, []string{"dealname", "amount"}, ParseProperties(p.DealProperties))
	assert.True(t, p.Recent())
	assert.True(t, p.LogRows())
	assert.Equal(t, 3, p.Advanced.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, p.Advanced.BackoffInitial)
	assert.Equal(t, 30*time.Second, p.Advanced.BackoffMax)
	assert.Equal(t, 16*datasize.KB, p.Advanced.BufferSize)
	assert.Equal(t, "gzip", p.Advanced.Compression)
	assert.Equal(t, AuthAPIKey, p.AuthMode)
}

func TestLoadFsOAuth(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/config.json", []byte(`{
		"parameters": {
			"auth_mode": "oauth",
			"oauth": {
				"client_id": "app",
				"#client_secret": "shh",
				"#refresh_token": "refresh",
				"token_url": "https://auth.test.local/token"
			}
		}
	}`), 0o644))

	var cfg Config
	require.NoError(t, LoadFs(fs, "/data/config.json", &cfg))
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, OAuthConfig{
		ClientID:     "app",
		ClientSecret: "shh",
		RefreshToken: "refresh",
		TokenURL:     "https://auth.test.local/token",
	}, cfg.Parameters.OAuth)
}

func TestLoadFsMissingFile(t *testing.T) {
	var cfg Config
	err := LoadFs(afero.NewMemMapFs(), "/nope.json", &cfg)
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	p := cfg.Parameters
	assert.Equal(t, []string{EndpointCompanies, EndpointDeals}, p.Endpoints)
	assert.Equal(t, DefaultBaseURL, p.Advanced.BaseURL)
	assert.Equal(t, 10, p.Advanced.MaxRetries)
	assert.Equal(t, 300*time.Millisecond, p.Advanced.BackoffInitial)
	assert.Equal(t, 8*datasize.KB, p.Advanced.BufferSize)
	assert.Equal(t, 1000, p.Advanced.BufferRows)
	assert.Equal(t, ",", p.Advanced.Delimiter)
	require.NotNil(t, p.Advanced.HTTP2)
	assert.True(t, *p.Advanced.HTTP2)
	assert.False(t, p.Recent())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{
			name:   "missing token",
			modify: func(c *Config) { c.Parameters.APIToken = "" },
			field:  "APIToken",
		},
		{
			name:   "unknown endpoint",
			modify: func(c *Config) { c.Parameters.Endpoints = []string{"contacts"} },
			field:  "Endpoints[0]",
		},
		{
			name:   "bad compression",
			modify: func(c *Config) { c.Parameters.Advanced.Compression = "zstd" },
			field:  "Compression",
		},
		{
			name: "oauth without refresh token",
			modify: func(c *Config) {
				c.Parameters.AuthMode = AuthOAuth
				c.Parameters.APIToken = ""
			},
			field: "RefreshToken",
		},
		{
			name:   "unparseable period",
			modify: func(c *Config) { c.Parameters.PeriodFrom = "last tuesday-ish" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Parameters: Parameters{APIToken: "token"}}
			cfg.ApplyDefaults()
			require.NoError(t, cfg.Validate())

			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
			if tt.field != "" {
				assert.Contains(t, err.Error(), tt.field)
			}
		})
	}
}

func TestValidateOAuth(t *testing.T) {
	cfg := Config{Parameters: Parameters{
		AuthMode: AuthOAuth,
		OAuth:    OAuthConfig{ClientID: "id", ClientSecret: "s", RefreshToken: "r"},
	}}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestParseProperties(t *testing.T) {
	assert.Nil(t, ParseProperties(""))
	assert.Nil(t, ParseProperties("  "))
	assert.Equal(t, []string{"name", "city"}, ParseProperties("name, city,, name"))
}

func TestParsePeriod(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC))

	tests := []struct {
		in   string
		want time.Time
	}{
		{"today", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"now", time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)},
		{"3 days ago", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"1 day", time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"2 weeks ago", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"1 month ago", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
		{"6 hours ago", time.Date(2024, 3, 15, 7, 45, 0, 0, time.UTC)},
		{"30 minutes ago", time.Date(2024, 3, 15, 13, 15, 0, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02T10:00:00+02:00", time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in, clock)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}

	_, err := ParsePeriod("soon", clock)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestEpochMillis(t *testing.T) {
	assert.Equal(t, int64(1704153600000), EpochMillis(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}
