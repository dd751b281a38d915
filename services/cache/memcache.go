package cache

import (
	"errors"
	"math"
	"time"

	perrors "pokequant/priceworker/pkg/errors"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheService{
		client: client,
	}
}

// Ping checks that the memcache server answers
func (m *MemcacheService) Ping() error {
	if err := m.client.Ping(); err != nil {
		return perrors.NewCache("memcache", "server unreachable", err)
	}
	return nil
}

// Get retrieves a value from memcache. Absent keys return ErrMiss.
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(Key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, perrors.NewCache("memcache", "get "+key, err)
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        Key(key),
		Value:      value,
		Expiration: expirationSeconds(expiration),
	})
	if err != nil {
		return perrors.NewCache("memcache", "set "+key, err)
	}
	return nil
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(Key(key))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return perrors.NewCache("memcache", "delete "+key, err)
	}
	return nil
}

// expirationSeconds rounds up so sub-second blocks do not become permanent;
// memcache reads 0 as "never expire"
func expirationSeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	return int32(math.Ceil(d.Seconds()))
}
