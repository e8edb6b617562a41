package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"market-advisor-bot/internal/advisor"
)

const lastNotifiedKey = "advisor:last_notified"

// A stale baseline is worse than none: after a week the market has moved on
// and the first cycle should notify again.
const lastNotifiedTTL = 7 * 24 * time.Hour

// RecommendationStore persists the last delivered recommendation so the
// novelty gate survives restarts. It satisfies monitor.Persister.
type RecommendationStore struct {
	cache *CacheService
}

// NewRecommendationStore creates the store on top of a cache service
func NewRecommendationStore(cache *CacheService) *RecommendationStore {
	return &RecommendationStore{cache: cache}
}

// SaveLastNotified stores the recommendation that was just delivered
func (s *RecommendationStore) SaveLastNotified(ctx context.Context, rec advisor.Recommendation) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation: %w", err)
	}
	return s.cache.Set(ctx, lastNotifiedKey, data, lastNotifiedTTL)
}

// LoadLastNotified returns the persisted recommendation, or nil when none
// is stored.
func (s *RecommendationStore) LoadLastNotified(ctx context.Context) (*advisor.Recommendation, error) {
	data, err := s.cache.Get(ctx, lastNotifiedKey)
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var rec advisor.Recommendation
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored recommendation: %w", err)
	}
	return &rec, nil
}
