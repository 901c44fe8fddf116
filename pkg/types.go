package pkg

import (
	"encoding/json"
	"time"
)

// Bus channel names shared by the api and connector processes
const (
	ChannelRequest  = "request"
	ChannelResponse = "response"
)

// ----------------------------------------------------
// ================ Bus envelopes ================

// RequestType selects which query the connector runs
type RequestType string

const (
	RequestGuild  RequestType = "guild"
	RequestMember RequestType = "member"
)

// RequestArgs carries the subject of a query.
// Member queries need both Guild and Member.
type RequestArgs struct {
	Guild  string `json:"guild,omitempty"`
	Member string `json:"member,omitempty"`
}

// RequestEnvelope is published on the request channel
type RequestEnvelope struct {
	Type RequestType `json:"type"`
	ID   string      `json:"id"` // correlation id
	Args RequestArgs `json:"args"`
}

// ResponseEnvelope is published on the response channel.
// Payload is only set when Code is 200.
type ResponseEnvelope struct {
	ID      string          `json:"id"`
	Code    int             `json:"code"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ----------------------------------------------------
// ================ Projections ================

// Channel is one guild channel in upstream order
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Guild is the flattened guild projection returned to browsers
type Guild struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Icon     string    `json:"icon"`
	Owner    string    `json:"owner"`
	Channels []Channel `json:"channels"`
}

// Role summarizes one role held by a member
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Position    int    `json:"position"`
	Permissions int64  `json:"permissions"`
}

// Member is the projection of a user within a guild
type Member struct {
	ID          string `json:"id"`
	Deleted     bool   `json:"deleted"`
	Permissions int64  `json:"permissions"`
	Roles       []Role `json:"roles"`
}

// ----------------------------------------------------
// ================ Identity ================

// User is the identity profile fetched from /users/@me
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Locale        string `json:"locale,omitempty"`
	MFAEnabled    bool   `json:"mfa_enabled,omitempty"`
	PremiumType   int    `json:"premium_type,omitempty"`
	PublicFlags   int    `json:"public_flags,omitempty"`
}

// SessionRecord is what the sessions hash stores per token
type SessionRecord struct {
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
// A zero ExpiresAt never expires.
func (s SessionRecord) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
