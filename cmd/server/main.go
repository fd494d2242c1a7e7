// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opentrusty/enterprise/internal/analytics"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/authz"
	"github.com/opentrusty/enterprise/internal/cache"
	"github.com/opentrusty/enterprise/internal/catalog"
	"github.com/opentrusty/enterprise/internal/codes"
	"github.com/opentrusty/enterprise/internal/config"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/enrollment"
	"github.com/opentrusty/enterprise/internal/events"
	"github.com/opentrusty/enterprise/internal/integration"
	"github.com/opentrusty/enterprise/internal/notification"
	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/observability/metrics"
	"github.com/opentrusty/enterprise/internal/observability/tracing"
	"github.com/opentrusty/enterprise/internal/platform"
	"github.com/opentrusty/enterprise/internal/reporting"
	"github.com/opentrusty/enterprise/internal/store/postgres"
	"github.com/opentrusty/enterprise/internal/subsidy"
	transportHTTP "github.com/opentrusty/enterprise/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1], os.Args[2:]); err != nil {
			slog.Error("command failed", logger.Operation(os.Args[1]), logger.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg); err != nil {
		slog.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// runCommand dispatches administrative subcommands
func runCommand(cfg *config.Config, name string, args []string) error {
	switch name {
	case "migrate":
		return runMigrate(cfg)
	case "grant-role":
		return runGrantRole(cfg, args)
	case "transmit":
		return runTransmit(cfg, args)
	default:
		return fmt.Errorf("unknown command %q (expected migrate, grant-role or transmit)", name)
	}
}

func serve(cfg *config.Config) error {
	ctx := context.Background()

	slog.Info("starting enterprise api",
		"version", cfg.Observability.ServiceVersion,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer", logger.Error(err))
		}
	}()

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	instruments, err := metrics.NewInstruments(meter)
	if err != nil {
		slog.Warn("metric instruments unavailable, continuing without them", logger.Error(err))
		instruments = metrics.NopInstruments()
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	var modeCache enrollment.ModeCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.Connect(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		modeCache = rc
		slog.Info("course mode cache enabled", "addr", cfg.Redis.Addr)
	}

	emitter, closeEvents, err := newEmitter(cfg)
	if err != nil {
		return err
	}
	defer closeEvents()

	auditLogger := audit.NewSlogLogger()
	services := buildServices(cfg, db, modeCache, emitter, instruments, auditLogger)

	verifier := transportHTTP.NewTokenVerifier(transportHTTP.AuthConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTIssuer:   cfg.Auth.JWTIssuer,
		JWTAudience: cfg.Auth.JWTAudience,
	})

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(services, verifier, auditLogger)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-quit:
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newEmitter publishes to NATS when configured and to the log otherwise
func newEmitter(cfg *config.Config) (*events.Emitter, func(), error) {
	if cfg.NATS.URL == "" {
		slog.Info("NATS_URL not set, events are logged only")
		return events.NewEmitter(events.LogPublisher{}, cfg.NATS.SubjectPrefix), func() {}, nil
	}
	pub, err := events.ConnectNATS(cfg.NATS.URL, cfg.Observability.ServiceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	closeFn := func() {
		if err := pub.Close(); err != nil {
			slog.Error("failed to close nats connection", logger.Error(err))
		}
	}
	return events.NewEmitter(pub, cfg.NATS.SubjectPrefix), closeFn, nil
}

func buildServices(
	cfg *config.Config,
	db *postgres.DB,
	modeCache enrollment.ModeCache,
	emitter *events.Emitter,
	instruments *metrics.Instruments,
	auditLogger audit.Logger,
) transportHTTP.Services {
	userRepo := postgres.NewUserRepository(db)
	customerRepo := postgres.NewCustomerRepository(db)
	customerUserRepo := postgres.NewCustomerUserRepository(db)
	pendingUserRepo := postgres.NewPendingUserRepository(db)
	fulfillmentRepo := postgres.NewFulfillmentRepository(db)

	lms := platform.NewClient(platform.Config{
		BaseURL:      cfg.Platform.BaseURL,
		ClientID:     cfg.Platform.ClientID,
		ClientSecret: cfg.Platform.ClientSecret,
		Timeout:      cfg.Platform.Timeout,
		RetryCount:   cfg.Platform.RetryCount,
	})

	linker := customer.NewLinker(userRepo, customerUserRepo, pendingUserRepo, auditLogger)
	customerService := customer.NewService(customer.Repositories{
		Customers:  customerRepo,
		Users:      userRepo,
		InviteKeys: postgres.NewInviteKeyRepository(db),
		Branding:   postgres.NewBrandingRepository(db),
	}, linker, db, auditLogger)

	enroller := enrollment.NewEnroller(enrollment.EnrollerDeps{
		Users:              userRepo,
		Members:            customerUserRepo,
		PendingUsers:       pendingUserRepo,
		LMS:                lms,
		Enrollments:        postgres.NewCourseEnrollmentRepository(db),
		Fulfillments:       fulfillmentRepo,
		PendingEnrollments: postgres.NewPendingEnrollmentRepository(db),
	})
	bulkService := enrollment.NewBulkService(
		enrollment.NewPlatformModeResolver(lms, modeCache),
		userRepo,
		linker,
		enroller,
		emitter,
		emitter,
		instruments,
		auditLogger,
	)

	subsidyService := subsidy.NewService(
		fulfillmentRepo,
		postgres.NewHistoryRepository(db),
		customerUserRepo,
		lms,
		subsidy.NewTerminator(lms, lms, lms),
		instruments,
		auditLogger,
	)

	channelRepo := postgres.NewChannelConfigRepository(db)
	integrationService := integration.NewService(channelRepo, integration.TransmitterOptions{
		Tokens:      channelRepo,
		Timeout:     cfg.Platform.Timeout,
		Instruments: instruments,
		Events:      emitter,
	}, cfg.Platform.BaseURL, auditLogger)

	mailer := codes.NewSMTPMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password)

	return transportHTTP.Services{
		Customers:     customerService,
		Enrollment:    bulkService,
		Subsidies:     subsidyService,
		Catalog:       catalog.NewService(postgres.NewCatalogRepository(db), catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)),
		Integrations:  integrationService,
		Codes:         codes.NewService(mailer, cfg.Mail.From, cfg.Mail.CustomerSuccessEmail, auditLogger),
		Notifications: notification.NewService(postgres.NewNotificationReadRepository(db), customerRepo, customerUserRepo),
		Reports:       reporting.NewService(customerService),
		Analytics:     analytics.NewTokenIssuer(cfg.Analytics.PlotlySecret, cfg.Analytics.TokenTTL),
		Authz:         authz.NewService(postgres.NewAssignmentRepository(db)),
	}
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("applying schema")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("schema applied")
	return nil
}

// runGrantRole assigns an enterprise role, e.g. to bootstrap the first
// operator: grant-role 42 enterprise_openedx_operator '*'
func runGrantRole(cfg *config.Config, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: grant-role <user_id> <role> <enterprise_uuid|*>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	if _, ok := authz.DefaultRoles()[args[1]]; !ok {
		return fmt.Errorf("%w: %s", authz.ErrRoleNotFound, args[1])
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.NewAssignmentRepository(db).Grant(ctx, &authz.Assignment{
		UserID:       userID,
		Role:         args[1],
		EnterpriseID: args[2],
	}); err != nil {
		return err
	}
	slog.Info("role granted", logger.UserID(userID), "role", args[1], logger.EnterpriseID(args[2]))
	return nil
}

// runTransmit pushes a content metadata payload file to one channel
func runTransmit(cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: transmit <configuration_uuid> <payload.json>")
	}
	raw, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	var payload integration.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	emitter, closeEvents, err := newEmitter(cfg)
	if err != nil {
		return err
	}
	defer closeEvents()

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	instruments, err := metrics.NewInstruments(meter)
	if err != nil {
		instruments = metrics.NopInstruments()
	}

	channelRepo := postgres.NewChannelConfigRepository(db)
	svc := integration.NewService(channelRepo, integration.TransmitterOptions{
		Tokens:      channelRepo,
		Timeout:     cfg.Platform.Timeout,
		Instruments: instruments,
		Events:      emitter,
	}, cfg.Platform.BaseURL, audit.NewSlogLogger())

	// system actor
	result, err := svc.Transmit(ctx, 0, args[0], payload)
	if err != nil {
		return err
	}
	transmitted := 0
	for _, n := range result.Transmitted {
		transmitted += n
	}
	slog.Info("transmission finished",
		logger.ChannelCode(string(result.Channel)),
		logger.Count("transmitted", transmitted),
		logger.Count("failed_chunks", len(result.Failures)),
	)
	if !result.OK() {
		return fmt.Errorf("%d chunk(s) failed", len(result.Failures))
	}
	return nil
}
