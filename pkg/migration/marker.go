package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/client"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultMarkerTTL bounds how long a pending migration can be resumed.
const DefaultMarkerTTL = 24 * time.Hour

const markerKeyPrefix = "storefront:migration:"

// ErrMarkerNotFound is returned when a marker is missing or expired.
var ErrMarkerNotFound = errors.New("migration marker not found")

// Marker is a durable record of a migration that cleared the old binding but has not yet
// rebound the session. It holds everything needed to re-issue the create.
type Marker struct {
	ID              string                     `json:"id"`
	FromCartID      string                     `json:"from_cart_id"`
	FromChannelID   string                     `json:"from_channel_id"`
	TargetChannelID string                     `json:"target_channel_id"`
	Items           []client.CartLineItemInput `json:"items"`
	CreatedAt       time.Time                  `json:"created_at"`
}

// NewMarker returns a marker with a fresh id.
func NewMarker(fromCartID, fromChannelID, targetChannelID string, items []client.CartLineItemInput) Marker {
	return Marker{
		ID:              uuid.NewString(),
		FromCartID:      fromCartID,
		FromChannelID:   fromChannelID,
		TargetChannelID: targetChannelID,
		Items:           items,
		CreatedAt:       time.Now().UTC(),
	}
}

// MarkerStore persists pending migration markers.
type MarkerStore interface {
	Save(ctx context.Context, m Marker) error
	Load(ctx context.Context, id string) (*Marker, error)
	Delete(ctx context.Context, id string) error
}

// RedisMarkerStore keeps markers in Redis so any instance can resume them.
type RedisMarkerStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisMarkerStore creates a store. A non-positive ttl uses DefaultMarkerTTL.
func NewRedisMarkerStore(redisClient *redis.Client, ttl time.Duration) *RedisMarkerStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultMarkerTTL
	}
	return &RedisMarkerStore{redis: redisClient, ttl: ttl}
}

// Save stores m under its id.
func (s *RedisMarkerStore) Save(ctx context.Context, m Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := s.redis.Set(ctx, markerKeyPrefix+m.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set marker: %w", err)
	}
	return nil
}

// Load returns the marker with id, or ErrMarkerNotFound.
func (s *RedisMarkerStore) Load(ctx context.Context, id string) (*Marker, error) {
	data, err := s.redis.Get(ctx, markerKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMarkerNotFound
		}
		return nil, fmt.Errorf("redis get marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal marker: %w", err)
	}
	return &m, nil
}

// Delete removes the marker with id. Deleting a missing marker is not an error.
func (s *RedisMarkerStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, markerKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del marker: %w", err)
	}
	return nil
}

// MemoryMarkerStore keeps markers in process memory. Markers do not survive a restart and
// are not shared between instances.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	markers map[string]Marker
}

// NewMemoryMarkerStore creates an in-memory store. A non-positive ttl uses DefaultMarkerTTL.
func NewMemoryMarkerStore(ttl time.Duration) *MemoryMarkerStore {
	if ttl <= 0 {
		ttl = DefaultMarkerTTL
	}
	return &MemoryMarkerStore{ttl: ttl, markers: make(map[string]Marker)}
}

// Save implements MarkerStore.
func (s *MemoryMarkerStore) Save(_ context.Context, m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[m.ID] = m
	return nil
}

// Load implements MarkerStore.
func (s *MemoryMarkerStore) Load(_ context.Context, id string) (*Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[id]
	if !ok {
		return nil, ErrMarkerNotFound
	}
	if time.Since(m.CreatedAt) > s.ttl {
		delete(s.markers, id)
		return nil, ErrMarkerNotFound
	}
	return &m, nil
}

// Delete implements MarkerStore.
func (s *MemoryMarkerStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, id)
	return nil
}

// Len returns the number of stored markers.
func (s *MemoryMarkerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}
