package messaging

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// Ranking profiles understood by the default ranker. External rankers may
// define their own.
const (
	ProfileBalanced = "balanced"
	ProfileRecent   = "recent"
	ProfileRelevant = "relevant"
)

// RecencyRanker is the built-in scorer: a term-overlap score blended with
// an exponential recency decay. It stands in for pluggable embedding
// backends, which receive the same candidate set and return the same
// shape.
type RecencyRanker struct {
	// HalfLife controls the recency decay; zero means 24h.
	HalfLife time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// Rank scores candidates and returns them ordered by final score
// descending, ties broken by id descending.
func (r *RecencyRanker) Rank(_ context.Context, query, profile string, candidates []Message) ([]ScoredMessage, error) {
	halfLife := r.HalfLife
	if halfLife == 0 {
		halfLife = 24 * time.Hour
	}
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	relevanceWeight, recencyWeight := 0.5, 0.5
	switch profile {
	case ProfileRecent:
		relevanceWeight, recencyWeight = 0.2, 0.8
	case ProfileRelevant:
		relevanceWeight, recencyWeight = 0.8, 0.2
	}

	terms := strings.Fields(strings.ToLower(query))
	results := make([]ScoredMessage, 0, len(candidates))
	for _, msg := range candidates {
		relevance := termOverlap(terms, msg.Content)
		age := now.Sub(msg.Timestamp)
		recency := math.Exp2(-age.Hours() / halfLife.Hours())

		final := relevanceWeight*relevance + recencyWeight*recency
		results = append(results, ScoredMessage{
			Message:    msg,
			FinalScore: final,
			SubScores: map[string]float64{
				"relevance": relevance,
				"recency":   recency,
			},
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Message.ID > results[j].Message.ID
	})
	return results, nil
}

func termOverlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
