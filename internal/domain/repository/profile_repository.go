package repository

import (
	"context"

	"address-intelligence/internal/domain/entity"
)

// MutateFunc modifies a profile in place. created is true when the profile
// was made for this call. Returning an error discards the mutation.
type MutateFunc func(profile *entity.AddressProfile, created bool) error

// ProfileRepository owns AddressProfile records
type ProfileRepository interface {
	// Get returns a copy of the profile, or nil when the address is unknown
	Get(ctx context.Context, address string) (*entity.AddressProfile, error)

	// Mutate loads or creates the profile, applies fn and stores the result.
	// Calls for the same address are serialized.
	Mutate(ctx context.Context, address string, fn MutateFunc) (*entity.AddressProfile, error)

	// All returns a snapshot of every profile
	All(ctx context.Context) ([]*entity.AddressProfile, error)

	// TopByValue orders by activity+engagement descending, then lastSeen descending
	TopByValue(ctx context.Context, limit int) ([]*entity.AddressProfile, error)

	// BySegment returns profiles in a customer segment
	BySegment(ctx context.Context, segment string) ([]*entity.AddressProfile, error)
}
