package enrollment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/platform"
)

// CourseModeSource lists the modes a course run offers
type CourseModeSource interface {
	CourseModes(ctx context.Context, courseRunKey string) ([]string, error)
}

// ModeCache stores resolved modes across requests
type ModeCache interface {
	Get(ctx context.Context, courseRunKey string) (mode string, ok bool, err error)
	Set(ctx context.Context, courseRunKey, mode string) error
}

// PlatformModeResolver resolves modes from the LMS, optionally through a
// shared cache. Cache failures degrade to a direct lookup.
type PlatformModeResolver struct {
	source CourseModeSource
	cache  ModeCache
}

// NewPlatformModeResolver creates a resolver. cache may be nil.
func NewPlatformModeResolver(source CourseModeSource, cache ModeCache) *PlatformModeResolver {
	return &PlatformModeResolver{source: source, cache: cache}
}

// BestMode implements ModeResolver
func (r *PlatformModeResolver) BestMode(ctx context.Context, courseRunKey string) (string, error) {
	if r.cache != nil {
		mode, ok, err := r.cache.Get(ctx, courseRunKey)
		if err != nil {
			slog.WarnContext(ctx, "course mode cache read failed",
				logger.Component("enrollment"),
				logger.CourseRunKey(courseRunKey),
				logger.Error(err),
			)
		} else if ok {
			return mode, nil
		}
	}

	modes, err := r.source.CourseModes(ctx, courseRunKey)
	if err != nil {
		return "", fmt.Errorf("failed to resolve course mode for %s: %w", courseRunKey, err)
	}
	mode := platform.BestMode(modes)

	if r.cache != nil {
		if err := r.cache.Set(ctx, courseRunKey, mode); err != nil {
			slog.WarnContext(ctx, "course mode cache write failed",
				logger.Component("enrollment"),
				logger.CourseRunKey(courseRunKey),
				logger.Error(err),
			)
		}
	}
	return mode, nil
}

// BatchModeCache memoizes modes for the lifetime of one batch operation.
// It is not safe for concurrent use.
type BatchModeCache struct {
	resolver ModeResolver
	modes    map[string]string
}

// NewBatchModeCache wraps resolver with a per-batch memo
func NewBatchModeCache(resolver ModeResolver) *BatchModeCache {
	return &BatchModeCache{resolver: resolver, modes: make(map[string]string)}
}

// BestMode implements ModeResolver
func (b *BatchModeCache) BestMode(ctx context.Context, courseRunKey string) (string, error) {
	if mode, ok := b.modes[courseRunKey]; ok {
		return mode, nil
	}
	mode, err := b.resolver.BestMode(ctx, courseRunKey)
	if err != nil {
		return "", err
	}
	b.modes[courseRunKey] = mode
	return mode, nil
}
