package store

import (
	"context"
	"errors"

	"github.com/herta-labs/vibechecker/internal/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateClient = errors.New("duplicate client")
	ErrDuplicateWord   = errors.New("duplicate word")
)

type Store interface {
	ClientStore
	ChallengeStore
	WordStore
	ResultStore
	GetUsageStats(ctx context.Context) (model.UsageStats, error)
	Close() error
}

type ClientStore interface {
	CreateClient(ctx context.Context, client *model.Client) (int64, error)
	GetClient(ctx context.Context, clientID string) (model.Client, error)
}

type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c model.Challenge) error
	// ConsumeChallenge deletes the challenge iff it exists, is unexpired,
	// and the answer matches. At most one concurrent caller succeeds; all
	// other outcomes are ErrNotFound.
	ConsumeChallenge(ctx context.Context, challengeID string, answer int) error
}

type WordStore interface {
	// AddWord returns ErrDuplicateWord when the triple already exists.
	AddWord(ctx context.Context, w model.CustomWord) error
	// RemoveWord is a no-op when the triple is absent.
	RemoveWord(ctx context.Context, w model.CustomWord) error
	ListWords(ctx context.Context, clientID, category string) ([]string, error)
}

type ResultStore interface {
	CreateResult(ctx context.Context, r *model.VibeResult) (int64, error)
	// CreateResults inserts the batch in a single transaction.
	CreateResults(ctx context.Context, rs []*model.VibeResult) error
	ListResultsByClient(ctx context.Context, clientID string, limit, offset int) ([]model.VibeResult, error)
}
