package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// OwnerStore keeps the guild id -> owner user id mapping.
// The connector writes it and the api reads it.
type OwnerStore struct {
	store HashStore
}

// NewOwnerStore creates an owner store on top of store
func NewOwnerStore(store HashStore) *OwnerStore {
	return &OwnerStore{store: store}
}

// Owner returns the owner of guildID, or ErrNotFound
func (o *OwnerStore) Owner(ctx context.Context, guildID string) (string, error) {
	owner, err := o.store.Get(ctx, NamespaceOwners, guildID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get owner: %w", err)
	}
	return owner, nil
}

// SetOwner upserts one record
func (o *OwnerStore) SetOwner(ctx context.Context, guildID, ownerID string) error {
	if err := o.store.Set(ctx, NamespaceOwners, guildID, ownerID); err != nil {
		return fmt.Errorf("failed to set owner: %w", err)
	}
	return nil
}

// SetOwners bulk upserts guild id -> owner id records
func (o *OwnerStore) SetOwners(ctx context.Context, owners map[string]string) error {
	if err := o.store.SetMany(ctx, NamespaceOwners, owners); err != nil {
		return fmt.Errorf("failed to set owners: %w", err)
	}
	return nil
}

// DeleteOwner removes the record for guildID
func (o *OwnerStore) DeleteOwner(ctx context.Context, guildID string) error {
	if _, err := o.store.Delete(ctx, NamespaceOwners, guildID); err != nil {
		return fmt.Errorf("failed to delete owner: %w", err)
	}
	return nil
}

// Owners returns every record
func (o *OwnerStore) Owners(ctx context.Context) (map[string]string, error) {
	owners, err := o.store.GetAll(ctx, NamespaceOwners)
	if err != nil {
		return nil, fmt.Errorf("failed to get owners: %w", err)
	}
	return owners, nil
}

// GuildsOwnedBy returns the sorted ids of guilds owned by userID
func (o *OwnerStore) GuildsOwnedBy(ctx context.Context, userID string) ([]string, error) {
	owners, err := o.Owners(ctx)
	if err != nil {
		return nil, err
	}

	guilds := []string{}
	for guild, owner := range owners {
		if owner == userID {
			guilds = append(guilds, guild)
		}
	}
	sort.Strings(guilds)
	return guilds, nil
}
