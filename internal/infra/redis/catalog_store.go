package redis

import (
	"context"
	"errors"

	"forum-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogStore keeps the whole catalog document under a single key so
// several bot instances share one catalog:
//
//	SET {prefix}catalog <json document>
type CatalogStore struct {
	client *redis.Client
	prefix string
	sf     singleflight.Group
}

func NewCatalogStore(client *redis.Client, prefix string) *CatalogStore {
	return &CatalogStore{client: client, prefix: prefix}
}

// Load returns an empty catalog when the key does not exist yet.
func (s *CatalogStore) Load(ctx context.Context) (domain.CatalogState, error) {
	result, err, _ := s.sf.Do("load", func() (interface{}, error) {
		raw, err := s.client.Get(ctx, s.key()).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.NewCatalogState(), nil
		}
		if err != nil {
			return domain.CatalogState{}, err
		}
		return domain.DecodeCatalog(raw)
	})
	if err != nil {
		return domain.CatalogState{}, err
	}
	// Callers that shared the flight must not share maps.
	return result.(domain.CatalogState).Clone(), nil
}

func (s *CatalogStore) Save(ctx context.Context, state domain.CatalogState) error {
	raw, err := domain.EncodeCatalog(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(), raw, 0).Err()
}

func (s *CatalogStore) key() string {
	return s.prefix + "catalog"
}
