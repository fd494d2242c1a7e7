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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: noop.NewMeterProvider().Meter(serviceName)}, nil
	}
	// global provider; exporters are configured by the process environment
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// Instruments groups the counters recorded by the enrollment and subsidy
// services. The zero value is not usable; build it with NewInstruments or
// NopInstruments.
type Instruments struct {
	enrollItems   metric.Int64Counter
	revocations   metric.Int64Counter
	terminations  metric.Int64Counter
	transmissions metric.Int64Counter
}

// NewInstruments registers the domain counters on m.
func NewInstruments(m *Meter) (*Instruments, error) {
	var (
		in  Instruments
		err error
	)
	if in.enrollItems, err = m.CreateCounter("enterprise.enrollment.bulk.items", "Bulk enrollment items by outcome"); err != nil {
		return nil, err
	}
	if in.revocations, err = m.CreateCounter("enterprise.subsidy.revocations", "Subsidy fulfillments revoked"); err != nil {
		return nil, err
	}
	if in.terminations, err = m.CreateCounter("enterprise.subsidy.terminations", "Enrollment terminations by outcome"); err != nil {
		return nil, err
	}
	if in.transmissions, err = m.CreateCounter("enterprise.integration.transmissions", "Content metadata items transmitted by channel"); err != nil {
		return nil, err
	}
	return &in, nil
}

// NopInstruments returns instruments backed by a no-op provider.
func NopInstruments() *Instruments {
	in, _ := NewInstruments(&Meter{meter: noop.NewMeterProvider().Meter("noop")})
	return in
}

// EnrollItems records bulk enrollment items with the given outcome
// (success, pending, failure, invalid).
func (in *Instruments) EnrollItems(ctx context.Context, outcome string, n int) {
	if in == nil || n == 0 {
		return
	}
	in.enrollItems.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Revocation records one revoked fulfillment of the given kind.
func (in *Instruments) Revocation(ctx context.Context, kind string) {
	if in == nil {
		return
	}
	in.revocations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Termination records one termination attempt outcome.
func (in *Instruments) Termination(ctx context.Context, outcome string) {
	if in == nil {
		return
	}
	in.terminations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Transmission records transmitted items for a channel.
func (in *Instruments) Transmission(ctx context.Context, channel string, n int) {
	if in == nil || n == 0 {
		return
	}
	in.transmissions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("channel", channel)))
}
