// Package search provides a simple, deterministic in-room message search.
// It ranks the messages of one appointment conversation against a free-text
// query using Jaccard similarity between token sets:
// score = |Q ∩ M| / |Q ∪ M|.
//
// The package is intentionally small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Deterministic scoring and sorting (stable order for ties)
//   - Stateless ranking over a caller-provided message slice, so results
//     are always as fresh as the history the caller just loaded
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/careward/hospital-chat/internal/domain"
)

// Match is a ranked message with its similarity score.
type Match struct {
	Message domain.ChatMessage
	Score   float64
}

// Ranker is the minimal interface consumed by the HTTP layer.
type Ranker interface {
	Rank(messages []domain.ChatMessage, query string, k int) []Match
}

// Option configures a ranker.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
}

// WithStopwords removes the given words from both query and message token
// sets before scoring. Matching is case-insensitive.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

type ranker struct {
	cfg config
}

// NewRanker constructs a Ranker. The zero-option ranker scores raw token
// sets with no stop-word removal.
func NewRanker(opts ...Option) Ranker {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	return &ranker{cfg: cfg}
}

// Rank returns up to k messages best matching the query, highest score
// first. Ties break toward shorter bodies, then lexicographically by id, so
// the order is stable across calls. An empty query or token-free query
// returns nil.
func (r *ranker) Rank(messages []domain.ChatMessage, query string, k int) []Match {
	if len(messages) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(query, r.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		msg      domain.ChatMessage
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, len(messages))
	for _, m := range messages {
		mTokens := tokenize(m.Body, r.cfg.stopwords)
		over := overlap(qTokens, mTokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + len(mTokens) - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{
			msg:      m,
			score:    float64(over) / union,
			lenRunes: utf8.RuneCountInString(m.Body),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].msg.ID < buf[b].msg.ID
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Match, k)
	for i := 0; i < k; i++ {
		out[i] = Match{Message: buf[i].msg, Score: buf[i].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// tokenize lowercases s and extracts its unique word tokens, skipping any
// configured stop words.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

// overlap counts tokens present in both sets, iterating the smaller one.
func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
