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
	"time"

	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/observability/metrics"
)

// Action is a content metadata operation against a channel
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// SubjectContentTransmitted is the event suffix published after a transmission
const SubjectContentTransmitted = "integration.transmitted"

// EventSink publishes transmission summaries
type EventSink interface {
	Publish(ctx context.Context, suffix string, v any) error
}

// TransmitFailure records one chunk the channel rejected
type TransmitFailure struct {
	Action     Action   `json:"action"`
	ContentIDs []string `json:"content_ids"`
	Error      string   `json:"error"`
}

// TransmitResult summarizes one transmission run
type TransmitResult struct {
	ConfigurationUUID string            `json:"configuration_uuid"`
	Channel           ChannelCode       `json:"channel_code"`
	Transmitted       map[Action]int    `json:"transmitted"`
	Failures          []TransmitFailure `json:"failures"`
	FinishedAt        time.Time         `json:"finished_at"`
}

// OK reports whether every chunk was accepted
func (r *TransmitResult) OK() bool {
	return len(r.Failures) == 0
}

// TransmitterOptions carries the optional collaborators of a transmitter
type TransmitterOptions struct {
	Tokens      TokenSaver
	Timeout     time.Duration
	Instruments *metrics.Instruments
	Events      EventSink
}

// ContentMetadataTransmitter sends exported content metadata to one
// channel in chunks of the configuration's transmission chunk size. A
// rejected chunk is recorded and the run continues with the next chunk.
type ContentMetadataTransmitter struct {
	cfg         *Configuration
	client      Client
	instruments *metrics.Instruments
	events      EventSink
	now         func() time.Time
}

// NewContentMetadataTransmitter wraps an existing channel client
func NewContentMetadataTransmitter(cfg *Configuration, client Client, opts TransmitterOptions) *ContentMetadataTransmitter {
	return &ContentMetadataTransmitter{
		cfg:         cfg,
		client:      client,
		instruments: opts.Instruments,
		events:      opts.Events,
		now:         time.Now,
	}
}

// NewTransmitter builds the transmitter for the configuration's channel
func NewTransmitter(cfg *Configuration, opts TransmitterOptions) (*ContentMetadataTransmitter, error) {
	if !cfg.Active {
		return nil, fmt.Errorf("%w: %s", ErrInactiveConfiguration, cfg.UUID)
	}

	var (
		client Client
		err    error
	)
	switch cfg.ChannelCode {
	case ChannelBlackboard:
		client, err = NewBlackboardClient(cfg, opts.Tokens, opts.Timeout)
	case ChannelCanvas:
		client, err = NewCanvasClient(cfg, opts.Tokens, opts.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, cfg.ChannelCode)
	}
	if err != nil {
		return nil, err
	}
	return NewContentMetadataTransmitter(cfg, client, opts), nil
}

// Transmit pushes creates, then updates, then deletes
func (t *ContentMetadataTransmitter) Transmit(ctx context.Context, p Payload) *TransmitResult {
	result := &TransmitResult{
		ConfigurationUUID: t.cfg.UUID,
		Channel:           t.cfg.ChannelCode,
		Transmitted:       map[Action]int{},
	}

	t.transmit(ctx, result, ActionCreate, p.Create, t.client.CreateContentMetadata)
	t.transmit(ctx, result, ActionUpdate, p.Update, t.client.UpdateContentMetadata)
	t.transmit(ctx, result, ActionDelete, p.Delete, t.client.DeleteContentMetadata)
	result.FinishedAt = t.now().UTC()

	if t.events != nil {
		if err := t.events.Publish(ctx, SubjectContentTransmitted, result); err != nil {
			slog.WarnContext(ctx, "failed to publish transmission summary",
				logger.Component("integration"),
				logger.ChannelCode(string(t.cfg.ChannelCode)),
				logger.Error(err),
			)
		}
	}
	return result
}

func (t *ContentMetadataTransmitter) transmit(
	ctx context.Context,
	result *TransmitResult,
	action Action,
	items []ContentMetadataItem,
	send func(context.Context, []ContentMetadataItem) error,
) {
	channel := string(t.cfg.ChannelCode)
	for _, chunk := range chunkItems(items, t.cfg.ChunkSize()) {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, TransmitFailure{
				Action:     action,
				ContentIDs: contentIDs(chunk),
				Error:      err.Error(),
			})
			continue
		}
		if err := send(ctx, chunk); err != nil {
			slog.ErrorContext(ctx, "content metadata transmission failed",
				logger.Component("integration"),
				logger.ChannelCode(channel),
				logger.Operation(string(action)),
				logger.Count("items", len(chunk)),
				logger.Error(err),
			)
			result.Failures = append(result.Failures, TransmitFailure{
				Action:     action,
				ContentIDs: contentIDs(chunk),
				Error:      err.Error(),
			})
			continue
		}
		result.Transmitted[action] += len(chunk)
		t.instruments.Transmission(ctx, channel, len(chunk))
	}
}

func chunkItems(items []ContentMetadataItem, size int) [][]ContentMetadataItem {
	if size < 1 {
		size = 1
	}
	var chunks [][]ContentMetadataItem
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func contentIDs(items []ContentMetadataItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ContentID
	}
	return ids
}
