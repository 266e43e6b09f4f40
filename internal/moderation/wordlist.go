// Package moderation manages per-client word lists and runs detection
// against them.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/herta-labs/vibechecker/internal/model"
	"github.com/herta-labs/vibechecker/internal/store"
)

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// ErrInvalidArgument covers bad actions, bad categories, and word sets
// that normalize to nothing.
var ErrInvalidArgument = errors.New("invalid argument")

type Service struct {
	store store.WordStore
}

func NewService(st store.WordStore) *Service {
	return &Service{store: st}
}

// Apply adds or removes a batch of words on one of the caller's lists and
// returns the number of entries touched. A duplicate insert is
// already-satisfied state, not a failure, so an add batch containing known
// words still succeeds. Removing absent words is likewise a no-op.
func (s *Service) Apply(ctx context.Context, clientID, action, category string, words []string) (int, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	category = strings.ToLower(strings.TrimSpace(category))
	if action != ActionAdd && action != ActionRemove {
		return 0, fmt.Errorf("%w: action must be add or remove", ErrInvalidArgument)
	}
	if category != model.CategoryBlacklist && category != model.CategoryWhitelist {
		return 0, fmt.Errorf("%w: category must be blacklist or whitelist", ErrInvalidArgument)
	}
	normalized := Normalize(words)
	if len(normalized) == 0 {
		return 0, fmt.Errorf("%w: no usable words", ErrInvalidArgument)
	}

	applied := 0
	for _, word := range normalized {
		entry := model.CustomWord{ClientID: clientID, Word: word, Category: category}
		switch action {
		case ActionAdd:
			if err := s.store.AddWord(ctx, entry); err != nil {
				if errors.Is(err, store.ErrDuplicateWord) {
					continue
				}
				return applied, err
			}
		case ActionRemove:
			if err := s.store.RemoveWord(ctx, entry); err != nil {
				return applied, err
			}
		}
		applied++
	}
	return applied, nil
}

// Normalize trims, lowercases, drops empties, and dedups while keeping a
// deterministic order.
func Normalize(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
