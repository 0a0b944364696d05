package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"address-intelligence/internal/infrastructure/config"

	"github.com/redis/go-redis/v9"
)

// normalizeContact lower-cases emails and strips spaces from phone numbers
func normalizeContact(contact string) string {
	c := strings.TrimSpace(contact)
	if strings.Contains(c, "@") {
		return strings.ToLower(c)
	}
	return strings.ReplaceAll(c, " ", "")
}

// RedisContactDirectory keeps contact→wallet links in Redis sets
type RedisContactDirectory struct {
	client *redis.Client
	prefix string
}

// NewRedisContactDirectory creates a directory backed by Redis
func NewRedisContactDirectory(cfg *config.RedisConfig) *RedisContactDirectory {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "contact"
	}
	return &RedisContactDirectory{client: client, prefix: prefix}
}

func (r *RedisContactDirectory) key(contact string) string {
	return fmt.Sprintf("%s:%s:wallets", r.prefix, normalizeContact(contact))
}

// Ping checks the Redis connection
func (r *RedisContactDirectory) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (r *RedisContactDirectory) Close() error {
	return r.client.Close()
}

// LookupWalletsByContact returns linked wallets in sorted order
func (r *RedisContactDirectory) LookupWalletsByContact(ctx context.Context, contact string) ([]string, error) {
	wallets, err := r.client.SMembers(ctx, r.key(contact)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lookup %q: %w", contact, err)
	}
	sort.Strings(wallets)
	return wallets, nil
}

// LinkWallets records that a contact owns wallets
func (r *RedisContactDirectory) LinkWallets(ctx context.Context, contact string, wallets ...string) error {
	if len(wallets) == 0 {
		return nil
	}
	members := make([]any, len(wallets))
	for i, w := range wallets {
		members[i] = w
	}
	if err := r.client.SAdd(ctx, r.key(contact), members...).Err(); err != nil {
		return fmt.Errorf("redis link %q: %w", contact, err)
	}
	return nil
}

// MemoryContactDirectory is an in-process directory
type MemoryContactDirectory struct {
	mu    sync.RWMutex
	links map[string]map[string]struct{}
}

// NewMemoryContactDirectory creates an empty directory
func NewMemoryContactDirectory() *MemoryContactDirectory {
	return &MemoryContactDirectory{links: make(map[string]map[string]struct{})}
}

// LookupWalletsByContact returns linked wallets in sorted order
func (m *MemoryContactDirectory) LookupWalletsByContact(ctx context.Context, contact string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.links[normalizeContact(contact)]
	wallets := make([]string, 0, len(set))
	for w := range set {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets, nil
}

// LinkWallets records that a contact owns wallets
func (m *MemoryContactDirectory) LinkWallets(_ context.Context, contact string, wallets ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeContact(contact)
	set, ok := m.links[key]
	if !ok {
		set = make(map[string]struct{})
		m.links[key] = set
	}
	for _, w := range wallets {
		set[w] = struct{}{}
	}
	return nil
}
