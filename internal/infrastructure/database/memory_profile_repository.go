package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/domain/repository"
)

// MemoryProfileRepository keeps profiles in a map. Writes to one address are
// serialized; different addresses proceed in parallel.
type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*entity.AddressProfile
	locks    *addressLocks
	now      func() time.Time
}

// NewMemoryProfileRepository creates an empty repository
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{
		profiles: make(map[string]*entity.AddressProfile),
		locks:    newAddressLocks(),
		now:      time.Now,
	}
}

var _ repository.ProfileRepository = (*MemoryProfileRepository)(nil)

// Get returns a copy of the profile or nil
func (r *MemoryProfileRepository) Get(ctx context.Context, address string) (*entity.AddressProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[address].Clone(), nil
}

// Mutate applies fn to a private copy and swaps it in on success
func (r *MemoryProfileRepository) Mutate(ctx context.Context, address string, fn repository.MutateFunc) (*entity.AddressProfile, error) {
	unlock := r.locks.lock(address)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	current := r.profiles[address]
	r.mu.RUnlock()

	created := current == nil
	var working *entity.AddressProfile
	if created {
		working = entity.NewAddressProfile(address, r.now())
	} else {
		working = current.Clone()
	}

	if err := fn(working, created); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.profiles[address] = working
	r.mu.Unlock()

	return working.Clone(), nil
}

// All returns copies of every profile ordered by address
func (r *MemoryProfileRepository) All(ctx context.Context) ([]*entity.AddressProfile, error) {
	r.mu.RLock()
	out := make([]*entity.AddressProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// TopByValue returns at most limit profiles by activity+engagement
func (r *MemoryProfileRepository) TopByValue(ctx context.Context, limit int) ([]*entity.AddressProfile, error) {
	all, _ := r.All(ctx)
	SortByValue(all)
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// BySegment returns profiles whose customer segment matches
func (r *MemoryProfileRepository) BySegment(ctx context.Context, segment string) ([]*entity.AddressProfile, error) {
	all, _ := r.All(ctx)
	out := all[:0]
	for _, p := range all {
		if p.CustomerSegment == segment {
			out = append(out, p)
		}
	}
	return out, nil
}

// SortByValue orders by activity+engagement desc, then lastSeen desc, then
// address for a stable result
func SortByValue(profiles []*entity.AddressProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		a, b := profiles[i], profiles[j]
		va, vb := a.ActivityScore+a.EngagementScore, b.ActivityScore+b.EngagementScore
		if va != vb {
			return va > vb
		}
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.Address < b.Address
	})
}
