package discord

import (
	"discord_web/pkg"

	"github.com/bwmarrin/discordgo"
)

var channelKinds = map[discordgo.ChannelType]string{
	discordgo.ChannelTypeGuildText:          "text",
	discordgo.ChannelTypeDM:                 "dm",
	discordgo.ChannelTypeGuildVoice:         "voice",
	discordgo.ChannelTypeGroupDM:            "group",
	discordgo.ChannelTypeGuildCategory:      "category",
	discordgo.ChannelTypeGuildNews:          "news",
	discordgo.ChannelType(6):                "store",
	discordgo.ChannelTypeGuildNewsThread:    "news_thread",
	discordgo.ChannelTypeGuildPublicThread:  "public_thread",
	discordgo.ChannelTypeGuildPrivateThread: "private_thread",
	discordgo.ChannelTypeGuildStageVoice:    "stage",
	discordgo.ChannelTypeGuildDirectory:     "directory",
	discordgo.ChannelTypeGuildForum:         "forum",
	discordgo.ChannelType(16):               "media",
}

func channelKind(t discordgo.ChannelType) string {
	if kind, ok := channelKinds[t]; ok {
		return kind
	}
	return "unknown"
}

// projectGuild flattens a guild, keeping channels in state order.
// Callers hold the state read lock when guild comes from the state.
func projectGuild(guild *discordgo.Guild) pkg.Guild {
	channels := make([]pkg.Channel, 0, len(guild.Channels))
	for _, channel := range guild.Channels {
		channels = append(channels, pkg.Channel{
			ID:   channel.ID,
			Name: channel.Name,
			Type: channelKind(channel.Type),
		})
	}
	return pkg.Guild{
		ID:       guild.ID,
		Name:     guild.Name,
		Icon:     guild.Icon,
		Owner:    guild.OwnerID,
		Channels: channels,
	}
}

type roleLookup func(guildID, roleID string) (*discordgo.Role, bool)

// projectMember keeps the member's role order and skips roles the cache
// does not know yet. Deleted stays false: a member returned by REST is live.
func projectMember(member *discordgo.Member, lookup roleLookup, permissions int64) pkg.Member {
	out := pkg.Member{
		Permissions: permissions,
		Roles:       make([]pkg.Role, 0, len(member.Roles)),
	}
	if member.User != nil {
		out.ID = member.User.ID
	}
	for _, roleID := range member.Roles {
		role, ok := lookup(member.GuildID, roleID)
		if !ok {
			continue
		}
		out.Roles = append(out.Roles, pkg.Role{
			ID:          role.ID,
			Name:        role.Name,
			Position:    role.Position,
			Permissions: role.Permissions,
		})
	}
	return out
}

// guildPermissions is the guild-level bitmask: @everyone (role id == guild
// id) plus every role the member holds. Owners and administrators get
// PermissionAll. Callers hold the state read lock.
func guildPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if member.User != nil && member.User.ID == guild.OwnerID {
		return discordgo.PermissionAll
	}

	held := make(map[string]struct{}, len(member.Roles))
	for _, roleID := range member.Roles {
		held[roleID] = struct{}{}
	}

	var permissions int64
	for _, role := range guild.Roles {
		if role.ID == guild.ID {
			permissions |= role.Permissions
			continue
		}
		if _, ok := held[role.ID]; ok {
			permissions |= role.Permissions
		}
	}

	if permissions&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator {
		return discordgo.PermissionAll
	}
	return permissions
}
