package moderation

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/herta-labs/vibechecker/internal/model"
)

// Detection is the outcome of a blacklist scan.
type Detection struct {
	Profane bool
	Words   []string
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Detect tokenizes text and reports blacklist hits not covered by the
// whitelist. Whitelist membership always wins, regardless of insertion
// order. Hits come back sorted for reproducibility.
func (s *Service) Detect(ctx context.Context, clientID, text string) (Detection, error) {
	tokens := Tokenize(text)

	blacklist, err := s.store.ListWords(ctx, clientID, model.CategoryBlacklist)
	if err != nil {
		return Detection{}, err
	}
	whitelist, err := s.store.ListWords(ctx, clientID, model.CategoryWhitelist)
	if err != nil {
		return Detection{}, err
	}

	allowed := make(map[string]struct{}, len(whitelist))
	for _, w := range whitelist {
		allowed[w] = struct{}{}
	}

	var hits []string
	for _, w := range blacklist {
		if _, ok := tokens[w]; !ok {
			continue
		}
		if _, ok := allowed[w]; ok {
			continue
		}
		hits = append(hits, w)
	}
	sort.Strings(hits)
	return Detection{Profane: len(hits) > 0, Words: hits}, nil
}

// Tokenize lowercases text and splits it into Unicode word tokens
// (letters, digits, underscore). Only membership matters downstream, so
// the result is a set.
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[w] = struct{}{}
	}
	return tokens
}
