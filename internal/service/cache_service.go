package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches projected interview tasks. Every failure degrades to a miss.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// TaskKey is the cache key of one subject's task as seen by viewer.
func TaskKey(ref workflow.SubjectRef, viewer models.ViewerRole) string {
	return fmt.Sprintf("tasks:%s:%s:%s", ref.Domain, ref.ID, viewer)
}

func subjectPattern(ref workflow.SubjectRef) string {
	return fmt.Sprintf("tasks:%s:%s:*", ref.Domain, ref.ID)
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// GetTask returns the cached task when present and projected from the subject at version.
// An entry projected before the subject row last changed counts as a miss.
func (s *CacheService) GetTask(ctx context.Context, ref workflow.SubjectRef, viewer models.ViewerRole, version time.Time) (*models.InterviewTask, bool) {
	if !s.Enabled() {
		return nil, false
	}
	key := TaskKey(ref, viewer)
	start := time.Now()
	var task models.InterviewTask
	err := s.repo.Get(ctx, key, &task)
	stale := err == nil && !task.Timestamps.UpdatedAt.Equal(version)
	s.metrics.RecordCacheOperation(err == nil && !stale, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("task cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if stale {
		return nil, false
	}
	return &task, true
}

// PutTask stores a projected task.
func (s *CacheService) PutTask(ctx context.Context, task models.InterviewTask) {
	if !s.Enabled() {
		return
	}
	key := TaskKey(workflow.SubjectRef{Domain: task.Domain, ID: task.SubjectID}, task.Viewer)
	start := time.Now()
	err := s.repo.Set(ctx, key, task, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("task cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateSubject drops every cached view of the subject.
func (s *CacheService) InvalidateSubject(ctx context.Context, ref workflow.SubjectRef) {
	if !s.Enabled() {
		return
	}
	pattern := subjectPattern(ref)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("task cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
