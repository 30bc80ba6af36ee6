package domain

import "time"

// UnrankedRank is the placeholder rank for entries whose position has not
// been computed yet. A full resync or a rank recount replaces it.
const UnrankedRank = 999999

// LeaderboardEntry represents one mirrored user row.
type LeaderboardEntry struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	Rank          int64     `json:"rank"`
	Level         int       `json:"level"`
	XP            int64     `json:"xp"`
	MessageCount  int64     `json:"message_count"`
	LastUpdated   time.Time `json:"last_updated"`
	IsLive        bool      `json:"is_live"`
}

// Player is a raw upstream leaderboard record as returned by the ranking API.
type Player struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Level         int    `json:"level"`
	XP            int64  `json:"xp"`
	MessageCount  int64  `json:"message_count"`
}

// Entry converts a raw upstream player into a store row.
func (p Player) Entry(rank int64, live bool, now time.Time) LeaderboardEntry {
	username := p.Username
	if username == "" {
		username = "Unknown"
	}
	return LeaderboardEntry{
		UserID:        p.ID,
		Username:      username,
		Discriminator: p.Discriminator,
		Avatar:        p.Avatar,
		Rank:          rank,
		Level:         p.Level,
		XP:            p.XP,
		MessageCount:  p.MessageCount,
		LastUpdated:   now,
		IsLive:        live,
	}
}

// LookupSource indicates where a lookup result's data came from.
type LookupSource string

const (
	SourceLive   LookupSource = "live"
	SourceCached LookupSource = "cached"
)

// LookupResult is the view returned to callers of Lookup.
type LookupResult struct {
	Source         LookupSource `json:"source"`
	UserID         string       `json:"user_id"`
	Username       string       `json:"username"`
	Avatar         string       `json:"avatar,omitempty"`
	Rank           int64        `json:"rank"`
	Level          int          `json:"level"`
	XP             int64        `json:"xp"`
	MessageCount   int64        `json:"message_count,omitempty"`
	DataAgeMinutes int64        `json:"data_age_minutes,omitempty"`
}
