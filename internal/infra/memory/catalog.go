package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizbot-gateway/internal/domain"
)

// CatalogLoader fetches a tenant's full question list from a backing store.
type CatalogLoader interface {
	LoadQuestions(ctx context.Context, tenantID string) ([]domain.QuizQuestion, error)
}

// CatalogRepository caches per-tenant question lists with TTL to avoid
// repeated DB hits.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedCatalog
}

type cachedCatalog struct {
	questions []domain.QuizQuestion
	expiresAt time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedCatalog),
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
	// The list is sorted, so the first higher index is the successor.
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
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[tenantID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(tenantID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[tenantID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.loader.LoadQuestions(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		sort.Slice(questions, func(i, j int) bool { return questions[i].OrderIndex < questions[j].OrderIndex })

		r.mu.Lock()
		r.cache[tenantID] = cachedCatalog{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizQuestion), nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader is a loader backed by an in-memory map (useful for
// tests/demos). Tenants without entries get an empty catalog.
type StaticCatalogLoader struct {
	questions map[string][]domain.QuizQuestion
}

func NewStaticCatalogLoader(questions map[string][]domain.QuizQuestion) *StaticCatalogLoader {
	return &StaticCatalogLoader{questions: questions}
}

func (l *StaticCatalogLoader) LoadQuestions(_ context.Context, tenantID string) ([]domain.QuizQuestion, error) {
	questions := l.questions[tenantID]
	out := make([]domain.QuizQuestion, len(questions))
	copy(out, questions)
	return out, nil
}
