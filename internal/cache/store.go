// Package cache keeps recent ensemble verdicts for batch analysis so the same
// URL is not re-analyzed within the TTL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/url-guardian/client/internal/models"
)

type Stats struct {
	TotalCached  int `json:"total_cached"`
	ActiveCached int `json:"active_cached"`
	TTLSeconds   int `json:"ttl_seconds"`
}

// ResultCache is implemented by Store and by the redis client.
type ResultCache interface {
	GetResult(ctx context.Context, url string) (*models.EnsembleResponse, bool, error)
	SetResult(ctx context.Context, url string, resp models.EnsembleResponse) error
	ClearResults(ctx context.Context) error
	ResultStats(ctx context.Context) (Stats, error)
}

type item struct {
	value      models.EnsembleResponse
	expiration int64
}

// Store is a thread-safe in-memory ResultCache.
type Store struct {
	ttl   time.Duration
	now   func() time.Time
	items map[string]item
	mu    sync.RWMutex
}

func New(ttl time.Duration) *Store {
	return &Store{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]item),
	}
}

func (s *Store) SetResult(_ context.Context, url string, resp models.EnsembleResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[url] = item{
		value:      resp,
		expiration: s.now().Add(s.ttl).UnixNano(),
	}
	return nil
}

// GetResult returns false for missing and expired entries alike.
func (s *Store) GetResult(_ context.Context, url string) (*models.EnsembleResponse, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, found := s.items[url]
	if !found || s.now().UnixNano() > it.expiration {
		return nil, false, nil
	}
	resp := it.value
	return &resp, true, nil
}

func (s *Store) ClearResults(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]item)
	return nil
}

func (s *Store) ResultStats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UnixNano()
	active := 0
	for _, it := range s.items {
		if now <= it.expiration {
			active++
		}
	}
	return Stats{
		TotalCached:  len(s.items),
		ActiveCached: active,
		TTLSeconds:   int(s.ttl / time.Second),
	}, nil
}

// Cleanup removes expired items.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UnixNano()
	for k, v := range s.items {
		if now > v.expiration {
			delete(s.items, k)
		}
	}
}
