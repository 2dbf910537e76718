package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/internal/pipeline"
	"github.com/ajitpratap0/nebula-hubspot/pkg/clients"
	"github.com/ajitpratap0/nebula-hubspot/pkg/config"
	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/destinations/csv"
	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/sources/hubspot"
	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/logger"
	"github.com/ajitpratap0/nebula-hubspot/pkg/metrics"
	"github.com/ajitpratap0/nebula-hubspot/pkg/observability"
)

// Actions
const (
	ActionRun       = "run"
	ActionRowNumber = "rownumber"
)

// execute loads config.json from dataDir and runs the requested action.
// An empty action uses the one named in the configuration.
func execute(ctx context.Context, dataDir, action string) (err error) {
	fs := afero.NewOsFs()

	var cfg config.Config
	if err := config.LoadFs(fs, filepath.Join(dataDir, "config.json"), &cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load configuration")
	}
	cfg.ApplyDefaults()

	if err := logger.Init(logger.ConfigFor(cfg.Parameters.Debug)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx = context.WithValue(ctx, logger.RunIDKey, uuid.NewString())
	log := logger.WithContext(ctx)
	log.Info("running extractor", zap.String("version", version), zap.String("data_dir", dataDir))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return err
	}

	if cfg.Parameters.Advanced.Tracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "hubspot-extractor",
			ServiceVersion: version,
			Writer:         os.Stderr,
			SamplingRate:   1,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := shutdown(shutdownCtx); serr != nil {
				log.Warn("failed to flush traces", zap.Error(serr))
			}
		}()
	}

	if path := cfg.Parameters.Advanced.MetricsFile; path != "" {
		defer func() {
			if merr := metrics.WriteTextfile(path); merr != nil {
				log.Warn("failed to write metrics file", zap.String("path", path), zap.Error(merr))
			}
		}()
	}

	if action == "" {
		action = cfg.Action
	}
	switch action {
	case "", ActionRun:
		err = extract(ctx, fs, &cfg, dataDir, clockwork.NewRealClock(), log)
	case ActionRowNumber:
		_, err = pipeline.RowNumber(ctx, fs, rowNumberConfigFor(&cfg, dataDir), log)
	default:
		err = errors.New(errors.ErrorTypeConfig, "unsupported action").WithDetail("action", action)
	}
	if err != nil {
		log.Error("run failed", zap.String("action", action), zap.Error(err))
		return err
	}
	log.Info("run finished", zap.String("action", action))
	return nil
}

func extract(ctx context.Context, fs afero.Fs, cfg *config.Config, dataDir string, clock clockwork.Clock, log *zap.Logger) error {
	runCfg, err := runConfigFor(cfg, dataDir, clock)
	if err != nil {
		return err
	}

	client := clients.NewAPIClient(httpConfigFor(cfg), nil, log)
	client.SetAuthenticator(newAuthenticator(ctx, cfg.Parameters))
	fetcher := hubspot.NewFetcher(client, log)

	started := clock.Now()
	orch := pipeline.NewOrchestrator(fetcher, fs, runCfg, log)
	manifests, err := orch.Run(ctx)
	for _, m := range manifests {
		log.Info("table written",
			zap.String("table", m.Table),
			zap.String("path", m.Path),
			zap.Int("rows", m.RowsWritten))
	}
	if err != nil {
		return err
	}

	return pipeline.WriteState(fs, filepath.Join(dataDir, "out"), pipeline.State{LastUpdate: started})
}

// runConfigFor translates the configuration into the orchestrator's run
// configuration. The recent endpoints are used when period_from is set;
// their output is always incremental.
func runConfigFor(cfg *config.Config, dataDir string, clock clockwork.Clock) (*pipeline.RunConfig, error) {
	p := cfg.Parameters

	opts := core.ExtractOptions{
		Recent:      p.Recent(),
		Incremental: p.IncrementalOutput || p.Recent(),
	}
	if opts.Recent {
		since, err := config.ParsePeriod(p.PeriodFrom, clock)
		if err != nil {
			return nil, err
		}
		opts.Since = since
	}

	properties := make(map[string][]string)
	if props := config.ParseProperties(p.CompanyProperties); len(props) > 0 {
		properties[hubspot.Companies] = props
	}
	if props := config.ParseProperties(p.DealProperties); len(props) > 0 {
		properties[hubspot.Deals] = props
	}

	return &pipeline.RunConfig{
		Resources:  p.Endpoints,
		Properties: properties,
		Options:    opts,
		OutputDir:  filepath.Join(dataDir, "out", "tables"),
		Writer:     writerOptionsFor(cfg),
		LogRows:    p.LogRows(),
	}, nil
}

func rowNumberConfigFor(cfg *config.Config, dataDir string) pipeline.RowNumberConfig {
	return pipeline.RowNumberConfig{
		InputDir:  filepath.Join(dataDir, "in", "tables"),
		OutputDir: filepath.Join(dataDir, "out", "tables"),
		Input:     cfg.Parameters.RowNumber.Input,
		Output:    cfg.Parameters.RowNumber.Output,
		Writer:    writerOptionsFor(cfg),
		LogRows:   cfg.Parameters.LogRows(),
	}
}

func writerOptionsFor(cfg *config.Config) csv.Options {
	a := cfg.Parameters.Advanced
	opts := csv.Options{
		BufferSize:  a.BufferSize,
		BufferRows:  a.BufferRows,
		Compression: a.Compression,
	}
	if r := []rune(a.Delimiter); len(r) > 0 {
		opts.Delimiter = r[0]
	}
	return opts
}

func httpConfigFor(cfg *config.Config) *clients.HTTPConfig {
	a := cfg.Parameters.Advanced
	hc := clients.DefaultHTTPConfig()
	hc.BaseURL = a.BaseURL
	hc.UserAgent = "hubspot-extractor/" + version
	hc.MaxRetries = a.MaxRetries
	hc.BackoffInitial = a.BackoffInitial
	hc.BackoffMax = a.BackoffMax
	hc.RequestTimeout = a.RequestTimeout
	hc.RateLimit = a.RateLimitPerSec
	hc.RateBurst = a.RateBurst
	if a.HTTP2 != nil {
		hc.EnableHTTP2 = *a.HTTP2
	}
	return hc
}

func newAuthenticator(ctx context.Context, p config.Parameters) clients.Authenticator {
	switch p.AuthMode {
	case config.AuthOAuth:
		return clients.NewOAuthAuth(ctx, clients.OAuthSettings{
			ClientID:     p.OAuth.ClientID,
			ClientSecret: p.OAuth.ClientSecret,
			RefreshToken: p.OAuth.RefreshToken,
			TokenURL:     p.OAuth.TokenURL,
		}, nil)
	case config.AuthPrivateApp:
		return clients.BearerAuth{Token: p.APIToken}
	default:
		return clients.APIKeyAuth{Key: p.APIToken}
	}
}
