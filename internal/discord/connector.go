// Package discord adapts a discordgo gateway session to the dispatcher's
// Platform and forwards guild lifecycle events to the owners cache.
package discord

import (
	"context"
	"fmt"
	"sync"

	"discord_web/pkg"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Lifecycle receives guild events relevant to the owners cache
type Lifecycle interface {
	SyncOwners(ctx context.Context, guilds []pkg.Guild) error
	GuildCreated(ctx context.Context, guild pkg.Guild) error
	GuildUpdated(ctx context.Context, guild pkg.Guild) error
	GuildDeleted(ctx context.Context, guildID string) error
}

// Connector owns the live Discord session
type Connector struct {
	session *discordgo.Session
	logger  zerolog.Logger

	mu        sync.RWMutex
	ctx       context.Context
	lifecycle Lifecycle
	removers  []func()
}

// New creates a connector for a bot token. Nothing connects until Open.
func New(botToken string, logger zerolog.Logger) (*Connector, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.StateEnabled = true

	return &Connector{
		session: session,
		logger:  logger,
		ctx:     context.Background(),
	}, nil
}

// Bind routes guild lifecycle events to l
func (c *Connector) Bind(l Lifecycle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifecycle = l
	c.removers = append(c.removers,
		c.session.AddHandler(c.onReady),
		c.session.AddHandler(c.onGuildCreate),
		c.session.AddHandler(c.onGuildUpdate),
		c.session.AddHandler(c.onGuildDelete),
	)
}

// Open connects to the gateway. ctx bounds store writes made by event
// handlers for the life of the connection.
func (c *Connector) Open(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects and unregisters event handlers
func (c *Connector) Close() error {
	c.mu.Lock()
	for _, remove := range c.removers {
		remove()
	}
	c.removers = nil
	c.mu.Unlock()
	return c.session.Close()
}

// Guild returns the cached guild projection
func (c *Connector) Guild(guildID string) (pkg.Guild, bool) {
	guild, err := c.session.State.Guild(guildID)
	if err != nil {
		return pkg.Guild{}, false
	}

	c.session.State.RLock()
	defer c.session.State.RUnlock()
	return projectGuild(guild), true
}

// Member fetches the member over REST and resolves its roles and guild-level
// permissions from the state cache.
func (c *Connector) Member(ctx context.Context, guildID, userID string) (pkg.Member, error) {
	member, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return pkg.Member{}, fmt.Errorf("failed to fetch member: %w", err)
	}
	if member.GuildID == "" {
		member.GuildID = guildID
	}
	if err := c.session.State.MemberAdd(member); err != nil {
		c.logger.Debug().Err(err).Str("guild", guildID).Msg("failed to cache member")
	}

	guild, err := c.session.State.Guild(guildID)
	if err != nil {
		return pkg.Member{}, fmt.Errorf("failed to load guild %s: %w", guildID, err)
	}

	c.session.State.RLock()
	permissions := guildPermissions(guild, member)
	c.session.State.RUnlock()

	return projectMember(member, c.role, permissions), nil
}

func (c *Connector) role(guildID, roleID string) (*discordgo.Role, bool) {
	role, err := c.session.State.Role(guildID, roleID)
	if err != nil {
		return nil, false
	}
	return role, true
}

func (c *Connector) handlerContext() (context.Context, Lifecycle) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx, c.lifecycle
}

func (c *Connector) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	ctx, lifecycle := c.handlerContext()
	if lifecycle == nil {
		return
	}

	// On a fresh session Ready only carries unavailable stubs without an
	// owner; SyncOwners skips those and GuildCreate fills them in. Guilds
	// already in the state (resumes, reconnects) are written in bulk here.
	s.State.RLock()
	guilds := make([]pkg.Guild, 0, len(s.State.Guilds))
	for _, guild := range s.State.Guilds {
		guilds = append(guilds, projectGuild(guild))
	}
	s.State.RUnlock()

	if err := lifecycle.SyncOwners(ctx, guilds); err != nil {
		c.logger.Error().Err(err).Msg("failed to sync owners on ready")
	}
}

func (c *Connector) onGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	ctx, lifecycle := c.handlerContext()
	if lifecycle == nil || event.Guild == nil {
		return
	}
	if err := lifecycle.GuildCreated(ctx, projectGuild(event.Guild)); err != nil {
		c.logger.Error().Err(err).Str("guild", event.ID).Msg("failed to record guild owner")
	}
}

func (c *Connector) onGuildUpdate(_ *discordgo.Session, event *discordgo.GuildUpdate) {
	ctx, lifecycle := c.handlerContext()
	if lifecycle == nil || event.Guild == nil {
		return
	}
	if err := lifecycle.GuildUpdated(ctx, projectGuild(event.Guild)); err != nil {
		c.logger.Error().Err(err).Str("guild", event.ID).Msg("failed to update guild owner")
	}
}

func (c *Connector) onGuildDelete(_ *discordgo.Session, event *discordgo.GuildDelete) {
	ctx, lifecycle := c.handlerContext()
	if lifecycle == nil || event.Guild == nil {
		return
	}
	// Outages also send GUILD_DELETE, with unavailable set.
	if event.Unavailable {
		c.logger.Warn().Str("guild", event.ID).Msg("guild unavailable")
		return
	}
	if err := lifecycle.GuildDeleted(ctx, event.ID); err != nil {
		c.logger.Error().Err(err).Str("guild", event.ID).Msg("failed to delete guild owner")
	}
}
