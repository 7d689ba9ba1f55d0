// Package session defines the data carried by an authenticated dashboard
// session: the bearer token issued by the Plex Addons API and the user
// identity it currently authorizes.
package session

import "time"

// User mirrors the API's user payload. It is treated as an opaque value
// from the backend and is never mutated locally.
type User struct {
	ID               int64      `json:"id"`
	DiscordID        string     `json:"discord_id"`
	DiscordUsername  string     `json:"discord_username"`
	DiscordAvatar    string     `json:"discord_avatar,omitempty"`
	Email            string     `json:"email,omitempty"`
	SubscriptionTier string     `json:"subscription_tier"`
	StorageUsedBytes int64      `json:"storage_used_bytes"`
	StorageQuota     int64      `json:"storage_quota_bytes"`
	IsAdmin          bool       `json:"is_admin"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

// Session pairs a bearer token with the user it authorizes. The two are
// always set and cleared together; a Session with only one of them is
// never constructed.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Valid reports whether the session carries both a token and a user.
func (s Session) Valid() bool {
	return s.Token != "" && s.User.DiscordID != ""
}
