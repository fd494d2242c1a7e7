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

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConfigurationView is a configuration as shown to customer admins
type ConfigurationView struct {
	*Configuration
	OAuthAuthorizationURL string `json:"oauth_authorization_url,omitempty"`
}

// Service exposes channel configurations and runs transmissions
type Service struct {
	configs     ConfigurationRepository
	opts        TransmitterOptions
	lmsRoot     string
	auditLogger audit.Logger
}

// NewService creates a new integrated channel service. lmsRoot is the
// public platform URL that receives vendor OAuth callbacks.
func NewService(configs ConfigurationRepository, opts TransmitterOptions, lmsRoot string, auditLogger audit.Logger) *Service {
	if opts.Tokens == nil {
		opts.Tokens = configs
	}
	return &Service{
		configs:     configs,
		opts:        opts,
		lmsRoot:     lmsRoot,
		auditLogger: auditLogger,
	}
}

// ListForCustomer returns the customer's configurations with their OAuth
// authorization URLs
func (s *Service) ListForCustomer(ctx context.Context, customerUUID string) ([]ConfigurationView, error) {
	configs, err := s.configs.ListByCustomer(ctx, customerUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrated channels: %w", err)
	}
	views := make([]ConfigurationView, len(configs))
	for i, c := range configs {
		views[i] = ConfigurationView{
			Configuration:         c,
			OAuthAuthorizationURL: c.OAuthAuthorizationURL(s.lmsRoot),
		}
	}
	return views, nil
}

// Transmit sends payload through the channel configured under configUUID
func (s *Service) Transmit(ctx context.Context, actorID int64, configUUID string, payload Payload) (*TransmitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "integration.Transmit", trace.WithAttributes(
		attribute.String("integration.configuration_uuid", configUUID),
	))
	defer span.End()

	result, err := s.transmit(ctx, actorID, configUUID, payload)
	if err == nil && !result.OK() {
		span.SetAttributes(attribute.Int("integration.failed_chunks", len(result.Failures)))
	}
	tracing.RecordError(span, err)
	return result, err
}

func (s *Service) transmit(ctx context.Context, actorID int64, configUUID string, payload Payload) (*TransmitResult, error) {
	cfg, err := s.configs.Get(ctx, configUUID)
	if err != nil {
		return nil, err
	}

	t, err := NewTransmitter(cfg, s.opts)
	if err != nil {
		return nil, err
	}
	result := t.Transmit(ctx, payload)

	slog.InfoContext(ctx, "content metadata transmitted",
		logger.Component("integration"),
		logger.ChannelCode(string(cfg.ChannelCode)),
		logger.EnterpriseID(cfg.EnterpriseCustomerUUID),
		logger.Count("created", result.Transmitted[ActionCreate]),
		logger.Count("updated", result.Transmitted[ActionUpdate]),
		logger.Count("deleted", result.Transmitted[ActionDelete]),
		logger.Count("failed_chunks", len(result.Failures)),
	)

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeContentTransmitted,
		EnterpriseID: cfg.EnterpriseCustomerUUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Resource:     cfg.UUID,
		Metadata: map[string]any{
			"channel_code":  string(cfg.ChannelCode),
			"created":       result.Transmitted[ActionCreate],
			"updated":       result.Transmitted[ActionUpdate],
			"deleted":       result.Transmitted[ActionDelete],
			"failed_chunks": len(result.Failures),
		},
	})
	return result, nil
}
