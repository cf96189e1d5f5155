package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client for testing.
// Integration tests under tests/integration use testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB before each test
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := CacheKey{Operation: "ProductQuery", ChannelID: "1", Params: map[string]string{"entityId": "77"}}
	entry := &CacheEntry{
		Data:     []byte(`{"product": {"name": "Mug"}}`),
		Tags:     []string{"store/abc", "store/abc/channel/1"},
		Expires:  time.Now().Add(5 * time.Minute),
		CachedAt: time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if len(retrieved.Tags) != 2 {
		t.Errorf("Tags mismatch: got %v", retrieved.Tags)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Get(context.Background(), CacheKey{Operation: "Nope"})
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := CacheKey{Operation: "ProductQuery"}
	entry := &CacheEntry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(-1 * time.Hour),
	}

	// Set should not cache expired entries
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := CacheKey{Operation: "ProductQuery"}
	entry := &CacheEntry{Data: []byte(`{}`), Expires: time.Now().Add(5 * time.Minute)}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_InvalidateTags(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	d := NewDeriver("abc", "1")

	euProduct := CacheKey{Operation: "ProductQuery", ChannelID: "2", Params: map[string]string{"entityId": "77"}}
	rowProduct := CacheKey{Operation: "ProductQuery", ChannelID: "3", Params: map[string]string{"entityId": "77"}}
	euCategory := CacheKey{Operation: "CategoryQuery", ChannelID: "2", Params: map[string]string{"entityId": "9"}}

	set := func(key CacheKey, in TagInput) {
		t.Helper()
		entry := NewEntry([]byte(`{}`), NewSelector(time.Minute).Anonymous(d.Tags(in)))
		if err := manager.Set(ctx, key, entry); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	set(euProduct, TagInput{ChannelID: "2", EntityType: EntityProduct, EntityID: "77"})
	set(rowProduct, TagInput{ChannelID: "3", EntityType: EntityProduct, EntityID: "77"})
	set(euCategory, TagInput{ChannelID: "2", EntityType: EntityCategory, EntityID: "9"})

	// Channel-scoped product tag only removes that channel's product entry
	n, err := manager.InvalidateTags(ctx, "store/abc/channel/2/product:77")
	if err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}
	if n != 1 {
		t.Errorf("InvalidateTags removed %d entries, want 1", n)
	}
	if _, err := manager.Get(ctx, euProduct); err != ErrCacheMiss {
		t.Errorf("eu product should be invalidated, got %v", err)
	}
	if _, err := manager.Get(ctx, rowProduct); err != nil {
		t.Errorf("row product should survive, got %v", err)
	}
	if _, err := manager.Get(ctx, euCategory); err != nil {
		t.Errorf("eu category should survive, got %v", err)
	}

	// Store tag removes everything left
	n, err = manager.InvalidateTags(ctx, "store/abc")
	if err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}
	if n != 2 {
		t.Errorf("InvalidateTags removed %d entries, want 2", n)
	}
}

// An entry stored while its tag is being invalidated is either removed or still indexed,
// never left cached behind a dropped index.
func TestManager_InvalidateTags_ConcurrentSet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	const tag = "store/abc/product:77"
	policy := NewSelector(time.Minute).Anonymous([]string{tag})

	for i := 0; i < 200; i++ {
		key := CacheKey{Operation: "ProductQuery", ChannelID: "1", Params: map[string]string{"n": fmt.Sprint(i)}}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), policy)); err != nil {
				t.Errorf("Set failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := manager.InvalidateTags(ctx, tag); err != nil {
				t.Errorf("InvalidateTags failed: %v", err)
			}
		}()
		wg.Wait()

		if _, err := manager.Get(ctx, key); err == ErrCacheMiss {
			continue
		}
		indexed, err := client.SIsMember(ctx, tagIndexPrefix+tag, key.String()).Result()
		if err != nil {
			t.Fatalf("SIsMember failed: %v", err)
		}
		if !indexed {
			t.Fatalf("iteration %d: entry %s survived invalidation without an index", i, key.String())
		}
	}
}

func TestManager_InvalidateTags_Empty(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	n, err := manager.InvalidateTags(context.Background())
	if err != nil || n != 0 {
		t.Errorf("InvalidateTags() = %d, %v", n, err)
	}

	n, err = manager.InvalidateTags(context.Background(), "never-used")
	if err != nil || n != 0 {
		t.Errorf("InvalidateTags(never-used) = %d, %v", n, err)
	}
}

func TestManager_RevalidatePath(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := CacheKey{Operation: "ProductQuery", ChannelID: "1"}
	policy := NewSelector(time.Minute).Anonymous(PathTags("/product/77"))
	if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), policy)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	n, err := manager.RevalidatePath(ctx, "/")
	if err != nil {
		t.Fatalf("RevalidatePath failed: %v", err)
	}
	if n != 1 {
		t.Errorf("RevalidatePath removed %d entries, want 1", n)
	}
	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("entry should be gone, got %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	if err := manager.Set(context.Background(), CacheKey{Operation: "x"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
