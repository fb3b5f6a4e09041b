// Package redis caches hot read paths and claims webhook delivery ids.
package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizbot-gateway/internal/domain"
)

// CatalogLoader fetches a tenant's full question list from a backing store.
type CatalogLoader interface {
	LoadQuestions(ctx context.Context, tenantID string) ([]domain.QuizQuestion, error)
}

// CatalogRepository caches per-tenant question lists in Redis and falls back
// to a loader on cache miss.
// Catalogs are stored as: SET quiz:catalog:{tenantID} {json} EX ttl
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) FirstQuestions(ctx context.Context, tenantID string, limit int) ([]domain.QuizQuestion, error) {
	questions, err := r.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(questions) > limit {
		questions = questions[:limit]
	}
	out := make([]domain.QuizQuestion, len(questions))
	copy(out, questions)
	return out, nil
}

func (r *CatalogRepository) QuestionAt(ctx context.Context, tenantID string, orderIndex int) (*domain.QuizQuestion, error) {
	questions, err := r.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		if q.OrderIndex == orderIndex {
			found := q
			return &found, nil
		}
	}
	return nil, nil
}

func (r *CatalogRepository) NextQuestion(ctx context.Context, tenantID string, afterIndex int) (*domain.QuizQuestion, error) {
	questions, err := r.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		if q.OrderIndex > afterIndex {
			found := q
			return &found, nil
		}
	}
	return nil, nil
}

func (r *CatalogRepository) TotalPoints(ctx context.Context, tenantID string) (int, error) {
	questions, err := r.load(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, q := range questions {
		total += q.PointsOrDefault()
	}
	return total, nil
}

func (r *CatalogRepository) load(ctx context.Context, tenantID string) ([]domain.QuizQuestion, error) {
	key := r.catalogKey(tenantID)

	cached, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		if questions, ok := decodeCatalog(cached); ok {
			return questions, nil
		}
	}

	result, err, _ := r.sf.Do(tenantID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			if questions, ok := decodeCatalog(cached); ok {
				return questions, nil
			}
		}

		questions, err := r.loader.LoadQuestions(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		sort.Slice(questions, func(i, j int) bool { return questions[i].OrderIndex < questions[j].OrderIndex })

		if encoded, err := json.Marshal(questions); err == nil {
			r.client.Set(ctx, key, encoded, r.ttlWithJitter())
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizQuestion), nil
}

func (r *CatalogRepository) catalogKey(tenantID string) string {
	return "quiz:catalog:" + tenantID
}

func decodeCatalog(raw []byte) ([]domain.QuizQuestion, bool) {
	var questions []domain.QuizQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
