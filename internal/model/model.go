package model

import "time"

// Word list categories.
const (
	CategoryBlacklist = "blacklist"
	CategoryWhitelist = "whitelist"
)

// Client is a registered consumer of the API. The secret is stored only as
// a bcrypt hash; the plaintext is returned once at registration and cannot
// be recovered afterwards.
type Client struct {
	ID           int64
	ClientID     string
	SecretHash   string
	AppName      string
	ContactEmail string
	HomepageURI  string
	CreatedAt    time.Time
}

// Challenge is a short-lived arithmetic puzzle that gates token issuance.
// The answer never leaves the server.
type Challenge struct {
	ChallengeID string
	Question    string
	Answer      int
	ExpiresAt   time.Time
}

// CustomWord is one word owned by one client in one category. The
// (client, word, category) triple is unique.
type CustomWord struct {
	ClientID string
	Word     string
	Category string
}

// VibeResult is one analyzed text. Append-only.
type VibeResult struct {
	ID        int64
	ClientID  string
	Text      string
	Vibe      string
	Score     float64
	CreatedAt time.Time
}

type UsageStats struct {
	Total    int64
	Positive int64
	Neutral  int64
	Negative int64
}
