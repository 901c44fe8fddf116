package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"discord_web/internal/storage"
	"discord_web/pkg"
)

// SyncOwners bulk upserts the owner of every guild currently visible
func (d *Dispatcher) SyncOwners(ctx context.Context, guilds []pkg.Guild) error {
	owners := make(map[string]string, len(guilds))
	for _, guild := range guilds {
		if guild.ID == "" || guild.Owner == "" {
			continue
		}
		owners[guild.ID] = guild.Owner
	}
	if err := d.owners.SetOwners(ctx, owners); err != nil {
		return fmt.Errorf("failed to sync owners: %w", err)
	}
	d.logger.Info().Int("guilds", len(owners)).Msg("owners synced")
	return nil
}

// GuildCreated records the owner of a guild the bot joined or that became
// available
func (d *Dispatcher) GuildCreated(ctx context.Context, guild pkg.Guild) error {
	if guild.ID == "" || guild.Owner == "" {
		return nil
	}
	return d.owners.SetOwner(ctx, guild.ID, guild.Owner)
}

// GuildUpdated writes the owner only when it differs from the cached one
func (d *Dispatcher) GuildUpdated(ctx context.Context, guild pkg.Guild) error {
	if guild.ID == "" || guild.Owner == "" {
		return nil
	}
	current, err := d.owners.Owner(ctx, guild.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if current == guild.Owner {
		return nil
	}
	d.logger.Info().Str("guild", guild.ID).Msg("guild owner changed")
	return d.owners.SetOwner(ctx, guild.ID, guild.Owner)
}

// GuildDeleted drops the owner record of a guild the bot left
func (d *Dispatcher) GuildDeleted(ctx context.Context, guildID string) error {
	if guildID == "" {
		return nil
	}
	return d.owners.DeleteOwner(ctx, guildID)
}
