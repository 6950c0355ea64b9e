package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"scormrelay/internal/alerts"
	"scormrelay/internal/api/handlers"
	"scormrelay/internal/auth"
	"scormrelay/internal/config"
	"scormrelay/internal/core"
	"scormrelay/internal/db"
	"scormrelay/internal/external"
	"scormrelay/internal/mapping"
	"scormrelay/internal/postback"
	"scormrelay/internal/ratelimit"
	"scormrelay/internal/scorm"
	"scormrelay/internal/security"
	"scormrelay/internal/telemetry"
)

const schemaTimeout = 10 * time.Second

// metricsRecorder is implemented by both telemetry backends.
type metricsRecorder interface {
	core.MetricsCollector
	postback.OutcomeRecorder
}

// app is the composed process. Close releases pools and connections.
type app struct {
	server  *core.Server
	cache   *mapping.Cache
	alerts  alerts.Sink
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires every collaborator from cfg. AWS configuration is loaded
// only when a component needs it, so local mode with the memory backend runs
// without credentials.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	awsCfg := sync.OnceValues(func() (aws.Config, error) {
		return loadAWSConfig(ctx, cfg.AWS)
	})

	store, probe, err := buildMappingStore(ctx, cfg, awsCfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = mapping.NewCache(mapping.CacheConfig{
		Store:           store,
		Key:             cfg.Mapping.Key,
		RefreshInterval: cfg.Mapping.RefreshInterval,
		Logger:          logger,
	})

	clients := buildClients(cfg, logger)

	a.alerts, err = buildAlertSink(cfg, clients.slack, awsCfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	metrics, err := buildMetrics(cfg, awsCfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	admin, err := buildAdmin(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	srv.Metrics = metrics
	srv.Authenticator = admin
	srv.HealthProbes = []core.HealthProbe{probe}

	if cfg.Auth.RedisURL != "" {
		client, err := ratelimit.Connect(cfg.Auth.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		limiter := ratelimit.NewRedisStore(client, nil)
		srv.RateLimitStore = limiter
		srv.HealthProbes = append(srv.HealthProbes, core.NewProbe("rate_limit_store", limiter.Ping))
	} else {
		srv.RateLimitStore = ratelimit.NewMemoryStore(nil)
	}

	pipeline := postback.NewPipeline(postback.Config{
		Mappings: a.cache,
		Notifier: clients.comunitive,
		Alerts:   a.alerts,
		Recorder: metrics,
		Logger:   logger,
	})

	scormSvc := scorm.NewService(clients.scorm, scorm.PostbackSettings{
		TargetURL:    cfg.Scorm.PostbackTargetURL,
		AuthType:     cfg.Scorm.PostbackAuthType,
		AuthUsername: cfg.Scorm.PostbackAuthUsername,
		AuthPassword: cfg.Scorm.PostbackAuthPassword,
	}, a.alerts, logger)

	var postbackAuth func(http.Handler) http.Handler
	if cfg.Scorm.PostbackAuthUsername != "" && strings.EqualFold(cfg.Scorm.PostbackAuthType, "httpbasic") {
		postbackAuth = srv.RequireBasicAuth(cfg.Scorm.PostbackAuthUsername, cfg.Scorm.PostbackAuthPassword)
	}

	authHandler := handlers.NewAuthHandler(admin,
		srv.Throttle("login", cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow),
		logger, srv.Validator)
	notificationHandler := handlers.NewNotificationHandler(pipeline, clients.comunitive, postbackAuth, logger, srv.Validator)
	scormHandler := handlers.NewScormHandler(a.cache, scormSvc, logger, srv.Validator)

	srv.PublicRoutes = []core.RouteRegistrar{
		handlers.RegisterRoot,
		authHandler.RegisterRoutes,
		notificationHandler.RegisterRoutes,
	}
	srv.AdminRoutes = []core.RouteRegistrar{
		scormHandler.RegisterRoutes,
	}

	a.server = srv
	return a, nil
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}
	return awsCfg, nil
}

func buildMappingStore(ctx context.Context, cfg *config.Config, awsCfg func() (aws.Config, error), a *app) (mapping.BlobStore, core.HealthProbe, error) {
	switch cfg.Mapping.Backend {
	case config.BackendS3:
		c, err := awsCfg()
		if err != nil {
			return nil, nil, err
		}
		client := s3.NewFromConfig(c, func(o *s3.Options) {
			// LocalStack serves buckets by path.
			o.UsePathStyle = cfg.AWS.EndpointURL != ""
		})
		store := mapping.NewS3Store(client, cfg.Mapping.Bucket)
		return store, core.NewProbe("mapping_store", store.Ping), nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Mapping.DatabaseURL.Unmask())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		repo := db.NewBlobRepository(pool)
		schemaCtx, cancel := context.WithTimeout(ctx, schemaTimeout)
		defer cancel()
		if err := repo.EnsureSchema(schemaCtx); err != nil {
			return nil, nil, fmt.Errorf("ensuring mapping schema: %w", err)
		}
		return repo, core.NewProbe("mapping_store", repo.Ping), nil

	case config.BackendMemory:
		store := mapping.NewMemoryStore()
		return store, core.NewProbe("mapping_store", store.Ping), nil

	default:
		return nil, nil, fmt.Errorf("unknown mapping backend %q", cfg.Mapping.Backend)
	}
}

type outboundClients struct {
	comunitive *external.ComunitiveClient
	scorm      external.ScormConfigurer
	slack      *external.SlackClient
}

// buildClients creates one BaseClient per upstream so each has its own
// circuit breaker. Webhook URIs come from the mapping, so that client dials
// through the SSRF guard unless private destinations are allowed, and its
// breakers are kept per destination host.
func buildClients(cfg *config.Config, logger *slog.Logger) outboundClients {
	out := cfg.Outbound
	plain := func() *http.Client { return &http.Client{Timeout: out.Timeout} }

	webhookHTTP := security.NewGuard(nil).NewClient(out.Timeout, out.MaxRedirects)
	if out.AllowPrivateDestinations {
		logger.Warn("SSRF guard disabled for webhook delivery")
		webhookHTTP = plain()
	}

	comunitive := external.NewComunitiveClient(external.ComunitiveConfig{
		Webhook: external.NewBaseClient(webhookHTTP, "comunitive-webhook", external.NoRetry(), out.UserAgent, external.WithPerHostBreakers()),
		API:     external.NewBaseClient(plain(), "comunitive-api", external.NoRetry(), out.UserAgent),
		APIURL:  cfg.Comunitive.APIURL,
		APIKey:  cfg.Comunitive.APIKey,
		Logger:  logger,
	})

	var scormClient external.ScormConfigurer = external.NewScormCloudClient(
		external.NewBaseClient(plain(), "scorm-cloud", external.DefaultRetryPolicy(), out.UserAgent),
		cfg.Scorm.BaseURL, cfg.Scorm.AppID, cfg.Scorm.AppSecret,
	)
	if cfg.IsLocal() && cfg.Scorm.UseStub {
		logger.Warn("SCORM_STUB set, SCORM Cloud calls are logged only")
		scormClient = external.NewStubScormCloud(logger)
	}

	var slack *external.SlackClient
	if cfg.Slack.Token.IsSet() {
		slack = external.NewSlackClient(external.SlackConfig{
			Base:     external.NewBaseClient(plain(), "slack", external.DefaultRetryPolicy(), out.UserAgent),
			APIURL:   cfg.Slack.APIURL,
			Token:    cfg.Slack.Token,
			Channel:  cfg.Slack.Channel,
			Username: cfg.Slack.Username,
		})
	}

	return outboundClients{comunitive: comunitive, scorm: scormClient, slack: slack}
}

// buildAlertSink picks the alert path: the SQS queue when configured (with
// the direct sink as fallback), otherwise Slack, otherwise logs.
func buildAlertSink(cfg *config.Config, slack *external.SlackClient, awsCfg func() (aws.Config, error), logger *slog.Logger) (alerts.Sink, error) {
	var direct alerts.Sink = alerts.NewLogSink(logger)
	if slack != nil {
		direct = alerts.NewSlackSink(slack, logger)
	} else {
		logger.Warn("SLACK_TOKEN not set, alerts are logged only")
	}

	if cfg.AWS.AlertQueueURL == "" {
		return direct, nil
	}
	c, err := awsCfg()
	if err != nil {
		return nil, err
	}
	return alerts.NewQueueSink(sqs.NewFromConfig(c), cfg.AWS.AlertQueueURL, direct, nil, logger), nil
}

func buildMetrics(cfg *config.Config, awsCfg func() (aws.Config, error), logger *slog.Logger) (metricsRecorder, error) {
	if !cfg.Observability.EnableMetrics {
		return telemetry.NoopMetrics{}, nil
	}
	c, err := awsCfg()
	if err != nil {
		return nil, err
	}
	return telemetry.NewCloudWatchMetrics(cloudwatch.NewFromConfig(c), cfg.Observability.MetricNamespace, logger), nil
}

func buildAdmin(cfg *config.Config, logger *slog.Logger) (*auth.AdminService, error) {
	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, cfg.Auth.TokenTTL(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}
	admin, err := auth.NewAdminService(auth.AdminConfig{
		Email:    cfg.Auth.AdminEmail,
		Password: cfg.Auth.AdminPassword,
		Tokens:   issuer,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating admin service: %w", err)
	}
	return admin, nil
}
