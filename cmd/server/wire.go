package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	authhandler "eseva/internal/auth/handler"
	authservice "eseva/internal/auth/service"
	"eseva/internal/auth/store/loginsession"
	"eseva/internal/auth/store/revocation"
	"eseva/internal/auth/store/user"
	"eseva/internal/eseva/filestore"
	esevahandler "eseva/internal/eseva/handler"
	esevaservice "eseva/internal/eseva/service"
	esevastore "eseva/internal/eseva/store"
	jwttoken "eseva/internal/jwt_token"
	"eseva/internal/notification"
	"eseva/internal/platform/config"
	"eseva/internal/platform/metrics"
	"eseva/internal/platform/postgres"
	redisclient "eseva/internal/platform/redis"
	"eseva/internal/requirements"
	audit "eseva/pkg/platform/audit"
	auditkafka "eseva/pkg/platform/audit/kafka"
	auditpublisher "eseva/pkg/platform/audit/publisher"
	auditmemory "eseva/pkg/platform/audit/store/memory"
	auditpostgres "eseva/pkg/platform/audit/store/postgres"
	"eseva/pkg/platform/retry"
)

type userStore interface {
	authservice.UserStore
	esevaservice.UserDirectory
}

type revocationList interface {
	authservice.TokenRevocationList
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// stores groups the persistence backends chosen from configuration.
type stores struct {
	users        userStore
	sessions     authservice.LoginSessionStore
	trl          revocationList
	applications esevaservice.Store
	audit        audit.Store
}

// application is the fully wired service. close releases every resource
// opened while building it, in reverse order.
type application struct {
	handler http.Handler
	closers []func() error
}

func (a *application) close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApplication wires every component. On error the resources opened so
// far are released and a nil application is returned.
func buildApplication(ctx context.Context, cfg config.Server, logger *slog.Logger, reg *prometheus.Registry) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			if cerr := app.close(); cerr != nil {
				logger.WarnContext(ctx, "failed to release resources after wiring error", "error", cerr)
			}
		}
	}()

	st, err := buildStores(ctx, cfg, logger, app)
	if err != nil {
		return nil, err
	}

	auditStore := st.audit
	publisherOpts := []auditpublisher.Option{auditpublisher.WithLogger(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		client, err := auditkafka.NewClient(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() error { client.Close(); return nil })
		if err := auditkafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 1); err != nil {
			logger.WarnContext(ctx, "could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		auditStore = audit.Fanout(auditStore, auditkafka.NewSink(client, cfg.Kafka.AuditTopic))
		publisherOpts = append(publisherOpts, auditpublisher.WithAsyncBuffer(1024))
	}
	publisher := auditpublisher.NewPublisher(auditStore, publisherOpts...)
	app.closers = append(app.closers, func() error { publisher.Close(); return nil })

	m := metrics.New(reg)
	tokens := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)

	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	authSvc := authservice.New(st.users, st.sessions, gateway, tokens, st.trl,
		authservice.Config{
			OTPTTL:          cfg.OTP.TTL,
			TokenTTL:        cfg.JWT.TTL,
			MessageTemplate: cfg.OTP.MessageTemplate,
		},
		authservice.WithAuditPublisher(publisher),
		authservice.WithMetrics(m),
		authservice.WithLogger(logger),
	)

	files, err := filestore.NewOS(cfg.Upload.Dir, filestore.WithMaxBytes(cfg.Upload.MaxFileBytes))
	if err != nil {
		return nil, err
	}
	registry := requirements.NewRegistry()
	esevaSvc := esevaservice.New(st.applications, registry, files,
		esevaservice.WithUserDirectory(st.users),
		esevaservice.WithAuditPublisher(publisher),
		esevaservice.WithMetrics(m),
		esevaservice.WithLogger(logger),
	)

	var authOpts []authhandler.Option
	esevaOpts := []esevahandler.Option{
		esevahandler.WithMaxRequestBytes(esevahandler.MaxRequestBytes(files.MaxBytes(), maxDocumentCount(registry))),
	}
	if !cfg.IsProduction() {
		authOpts = append(authOpts, authhandler.WithInternalErrors())
		esevaOpts = append(esevaOpts, esevahandler.WithInternalErrors())
	}

	app.handler = newRouter(routerDeps{
		logger:         logger,
		metrics:        m,
		gatherer:       prometheus.Gatherers{reg, prometheus.DefaultGatherer},
		requestTimeout: cfg.RequestTimeout,
		tokens:         jwttoken.NewJWTServiceAdapter(tokens),
		revocations:    st.trl,
		auth:           authhandler.New(authSvc, logger, authOpts...),
		eseva:          esevahandler.New(esevaSvc, files, logger, esevaOpts...),
	})
	return app, nil
}

// maxDocumentCount is the largest document list of any service type.
func maxDocumentCount(r *requirements.Registry) int {
	n := 0
	for _, docs := range r.All() {
		n = max(n, len(docs))
	}
	return n
}

// buildStores picks Postgres when DATABASE_URL is set and in-memory stores
// otherwise. Redis, when configured, holds the revocation list.
func buildStores(ctx context.Context, cfg config.Server, logger *slog.Logger, app *application) (*stores, error) {
	st := &stores{}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		st.users = user.NewPostgres(db)
		st.sessions = loginsession.NewPostgres(db)
		st.applications = esevastore.NewPostgres(db)
		st.audit = auditpostgres.New(db)
	} else {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		st.users = user.NewInMemoryUserStore()
		st.sessions = loginsession.NewInMemoryStore()
		st.applications = esevastore.NewInMemoryStore()
		st.audit = auditmemory.NewInMemoryStore()
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	switch {
	case rc != nil:
		app.closers = append(app.closers, rc.Close)
		st.trl = revocation.NewRedisTRL(rc.Client)
	case db != nil:
		trl := revocation.NewPostgresTRL(db)
		if purged, err := trl.PurgeExpired(ctx); err != nil {
			logger.WarnContext(ctx, "failed to purge expired revocations", "error", err)
		} else if purged > 0 {
			logger.InfoContext(ctx, "purged expired revocations", "count", purged)
		}
		st.trl = trl
	default:
		st.trl = revocation.NewInMemoryTRL()
	}
	return st, nil
}

func buildGateway(cfg config.Server, logger *slog.Logger) (notification.Gateway, error) {
	var gw notification.Gateway
	switch cfg.SMS.Provider {
	case "log":
		gw = notification.NewLogGateway(logger)
	case "http":
		gw = notification.NewHTTPGateway(notification.HTTPConfig{
			BaseURL:  cfg.SMS.BaseURL,
			APIKey:   cfg.SMS.APIKey,
			SenderID: cfg.SMS.SenderID,
			UserID:   cfg.SMS.UserID,
			Password: cfg.SMS.Password,
			Timeout:  cfg.SMS.Timeout,
		}, logger)
	case "twilio":
		gw = notification.NewTwilioGateway(notification.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.SMS.Provider)
	}
	return notification.NewRetryingGateway(gw, retry.Policy{
		MaxAttempts: cfg.SMS.RetryMaxAttempts,
		BaseDelay:   cfg.SMS.RetryBaseDelay,
		MaxDelay:    cfg.SMS.RetryMaxDelay,
	}, logger), nil
}
