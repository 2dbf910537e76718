// Package config defines the extractor configuration: the Keboola style
// config.json with its "parameters" object, defaults for the advanced
// tuning knobs, and validation.
//
// Example usage:
//
//	var cfg config.Config
//	if err := config.Load("/data/config.json", &cfg); err != nil {
//	    return err
//	}
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config

import (
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/go-playground/validator/v10"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
)

// Supported resources
const (
	EndpointCompanies = "companies"
	EndpointDeals     = "deals"
)

// Authentication modes
const (
	AuthAPIKey     = "api_key"
	AuthPrivateApp = "private_app"
	AuthOAuth      = "oauth"
)

// DefaultBaseURL is the HubSpot API root
const DefaultBaseURL = "https://api.hubapi.com/"

// Config is the top level of config.json
type Config struct {
	Parameters Parameters `yaml:"parameters" json:"parameters"`
	Action     string     `yaml:"action" json:"action"`
}

// Parameters holds the user facing settings
type Parameters struct {
	// APIToken is the HubSpot API key or private app token
	APIToken string `yaml:"#api_token" json:"#api_token" validate:"required_unless=AuthMode oauth"`
	// AuthMode selects how APIToken is sent
	AuthMode string `yaml:"auth_mode" json:"auth_mode" validate:"omitempty,oneof=api_key private_app oauth"`
	// OAuth holds refresh token credentials for AuthMode oauth
	OAuth OAuthConfig `yaml:"oauth" json:"oauth"`
	// PeriodFrom switches extraction to the recently modified endpoints
	PeriodFrom string `yaml:"period_from" json:"period_from"`
	// Endpoints lists the resources to extract, in order
	Endpoints []string `yaml:"endpoints" json:"endpoints" validate:"dive,oneof=companies deals"`
	// CompanyProperties overrides the default company property list
	CompanyProperties string `yaml:"company_properties" json:"company_properties"`
	// DealProperties overrides the default deal property list
	DealProperties string `yaml:"deal_properties" json:"deal_properties"`
	// IncrementalOutput marks every output table as incremental
	IncrementalOutput bool `yaml:"incremental_output" json:"incremental_output"`
	Debug             bool `yaml:"debug" json:"debug"`
	// VerboseRows logs every written row
	VerboseRows bool `yaml:"verbose_rows" json:"verbose_rows"`
	// PrintRows is the legacy name of VerboseRows
	PrintRows bool `yaml:"print_rows" json:"print_rows"`

	// RowNumber configures the row number transformation
	RowNumber RowNumberConfig `yaml:"row_number" json:"row_number"`

	Advanced AdvancedConfig `yaml:"advanced" json:"advanced"`
}

// OAuthConfig holds the credentials used to refresh an access token
type OAuthConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id" validate:"required_with=RefreshToken"`
	ClientSecret string `yaml:"#client_secret" json:"#client_secret" validate:"required_with=RefreshToken"`
	RefreshToken string `yaml:"#refresh_token" json:"#refresh_token"`
	TokenURL     string `yaml:"token_url" json:"token_url" validate:"omitempty,url"`
}

// RowNumberConfig names the input and output tables of the row number
// transformation
type RowNumberConfig struct {
	Input  string `yaml:"input" json:"input"`
	Output string `yaml:"output" json:"output"`
}

// AdvancedConfig contains transport, retry and output tuning
type AdvancedConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`

	// MaxRetries bounds retries per request; total attempts are MaxRetries+1
	MaxRetries     int           `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=50"`
	BackoffInitial time.Duration `yaml:"backoff_initial" json:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max" json:"backoff_max"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// RateLimitPerSec paces requests; 0 disables pacing
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec" validate:"gte=0"`
	RateBurst       int     `yaml:"rate_burst" json:"rate_burst" validate:"gte=0"`
	HTTP2           *bool   `yaml:"http2" json:"http2"`

	BufferSize  datasize.ByteSize `yaml:"buffer_size" json:"buffer_size"`
	BufferRows  int               `yaml:"buffer_rows" json:"buffer_rows" validate:"gte=0"`
	Delimiter   string            `yaml:"delimiter" json:"delimiter" validate:"omitempty,len=1"`
	Compression string            `yaml:"compression" json:"compression" validate:"omitempty,oneof=none gzip"`

	Tracing     bool   `yaml:"tracing" json:"tracing"`
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
}

// ApplyDefaults fills unset fields with their defaults
func (c *Config) ApplyDefaults() {
	p := &c.Parameters
	if p.AuthMode == "" {
		p.AuthMode = AuthAPIKey
	}
	if len(p.Endpoints) == 0 {
		p.Endpoints = []string{EndpointCompanies, EndpointDeals}
	}
	if p.PrintRows {
		p.VerboseRows = true
	}
	if p.RowNumber.Input == "" {
		p.RowNumber.Input = "input"
	}
	if p.RowNumber.Output == "" {
		p.RowNumber.Output = "output"
	}

	a := &p.Advanced
	if a.BaseURL == "" {
		a.BaseURL = DefaultBaseURL
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = 10
	}
	if a.BackoffInitial == 0 {
		a.BackoffInitial = 300 * time.Millisecond
	}
	if a.BackoffMax == 0 {
		a.BackoffMax = 30 * time.Second
	}
	if a.RequestTimeout == 0 {
		a.RequestTimeout = 30 * time.Second
	}
	if a.RateLimitPerSec == 0 {
		a.RateLimitPerSec = 10
	}
	if a.RateBurst == 0 {
		a.RateBurst = 10
	}
	if a.HTTP2 == nil {
		enabled := true
		a.HTTP2 = &enabled
	}
	if a.BufferSize == 0 {
		a.BufferSize = 8 * datasize.KB
	}
	if a.BufferRows == 0 {
		a.BufferRows = 1000
	}
	if a.Delimiter == "" {
		a.Delimiter = ","
	}
	if a.Compression == "" {
		a.Compression = "none"
	}
}

// Validate checks mandatory parameters and value ranges. It returns a
// ConfigError listing every offending field.
func (c *Config) Validate() error {
	v := validator.New()
	err := v.Struct(c)
	if err == nil {
		return c.validateRules()
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
	}
	sort.Strings(fields)
	return errors.New(errors.ErrorTypeConfig, "invalid configuration: "+strings.Join(fields, ", ")).
		WithDetail("fields", fields)
}

func (c *Config) validateRules() error {
	p := c.Parameters
	if p.AuthMode == AuthOAuth && p.OAuth.RefreshToken == "" {
		return errors.New(errors.ErrorTypeConfig, "invalid configuration: Parameters.OAuth.RefreshToken (required for oauth)").
			WithDetail("fields", []string{"Parameters.OAuth.RefreshToken"})
	}
	if p.PeriodFrom == "" {
		return nil
	}
	if _, err := ParsePeriod(p.PeriodFrom, nil); err != nil {
		return err
	}
	return nil
}

// Recent reports whether the run uses the recently modified endpoints
func (p Parameters) Recent() bool {
	return strings.TrimSpace(p.PeriodFrom) != ""
}

// LogRows reports whether each written row is logged
func (p Parameters) LogRows() bool {
	return p.VerboseRows || p.PrintRows
}

// ParseProperties splits a comma separated property list. Entries are
// trimmed, empty entries dropped and duplicates removed keeping first
// occurrence.
func ParseProperties(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
