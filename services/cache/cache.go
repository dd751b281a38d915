package cache

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// keyPrefix namespaces every key this worker writes
const keyPrefix = "priceworker:"

// Key turns an arbitrary key into a memcache-safe namespaced key
func Key(key string) string {
	return keyPrefix + strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, key)
}

// MemoryService is an in-process CacheService for single-instance runs
type MemoryService struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryService creates an empty in-memory cache
func NewMemoryService() *MemoryService {
	return &MemoryService{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get retrieves a live value
func (m *MemoryService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[Key(key)]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, Key(key))
		return nil, ErrMiss
	}
	return e.value, nil
}

// Set stores value; a non-positive expiration never expires
func (m *MemoryService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		e.expiresAt = m.now().Add(expiration)
	}
	m.entries[Key(key)] = e
	return nil
}

// Delete removes key
func (m *MemoryService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, Key(key))
	return nil
}
