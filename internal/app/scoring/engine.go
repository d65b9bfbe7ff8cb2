// Package scoring ranks the catalog into a bounded smart queue.
package scoring

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/osa030/scenebox/internal/app/scene"
	"github.com/osa030/scenebox/internal/domain/track"
)

// MaxQueueSize is the default upper bound of a generated queue.
const MaxQueueSize = 30

// Weights holds the scoring policy.
type Weights struct {
	FavoriteBonus int // Added once for favorites
	StartBonus    int // Added per START in the counting window
	StartBonusCap int // Upper bound of the START bonus
	RecentBonus   int // Added when played in the recency window
	SkipPenalty   int // Subtracted per SKIP, uncapped
	MaxQueueSize  int // Queue length limit
}

// DefaultWeights returns the standard scoring policy.
func DefaultWeights() Weights {
	return Weights{
		FavoriteBonus: 50,
		StartBonus:    5,
		StartBonusCap: 40,
		RecentBonus:   10,
		SkipPenalty:   20,
		MaxQueueSize:  MaxQueueSize,
	}
}

// Input is an immutable snapshot of everything one ranking needs.
type Input struct {
	Tracks         []track.Track      // Catalog in its input order
	StartCounts    map[int64]int      // START events per track (7 days)
	SkipCounts     map[int64]int      // SKIP events per track (7 days)
	PlayedRecently map[int64]struct{} // Tracks started in the last 24 hours
	Scene          scene.Scene        // Current scene (does not affect scores)
	Now            time.Time          // Seeds the fill shuffle
}

// ScoredTrack pairs a track with its score for one ranking.
type ScoredTrack struct {
	Track track.Track
	Score int
}

// Engine ranks tracks with a fixed set of weights.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	weights Weights
}

// New creates an engine. A non-positive MaxQueueSize falls back to MaxQueueSize.
func New(w Weights) *Engine {
	if w.MaxQueueSize <= 0 {
		w.MaxQueueSize = MaxQueueSize
	}
	return &Engine{weights: w}
}

// Weights returns the engine's scoring policy.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Score computes the score of a single track.
func (e *Engine) Score(t track.Track, in Input) int {
	w := e.weights
	score := 0
	if t.IsFavorite {
		score += w.FavoriteBonus
	}
	score += min(in.StartCounts[t.ID]*w.StartBonus, w.StartBonusCap)
	if _, ok := in.PlayedRecently[t.ID]; ok {
		score += w.RecentBonus
	}
	score -= in.SkipCounts[t.ID] * w.SkipPenalty
	return score
}

// Rank scores every track and stable-sorts them by score, highest first.
// Tracks with equal scores keep their catalog order.
func (e *Engine) Rank(in Input) []ScoredTrack {
	scored := make([]ScoredTrack, len(in.Tracks))
	for i, t := range in.Tracks {
		scored[i] = ScoredTrack{Track: t, Score: e.Score(t, in)}
	}
	slices.SortStableFunc(scored, func(a, b ScoredTrack) int {
		return b.Score - a.Score
	})
	return scored
}

// GenerateQueue returns at most MaxQueueSize distinct tracks.
// The head is the ranked list; remaining capacity is filled from the tracks
// beyond the head, shuffled with a generator seeded by in.Now.
func (e *Engine) GenerateQueue(in Input) []track.Track {
	if len(in.Tracks) == 0 {
		return []track.Track{}
	}
	limit := e.weights.MaxQueueSize

	ranked := e.Rank(in)
	headLen := min(limit, len(ranked))

	queue := make([]track.Track, 0, limit)
	for _, st := range ranked[:headLen] {
		queue = append(queue, st.Track)
	}

	if len(queue) < limit {
		rest := make([]track.Track, 0, len(ranked)-headLen)
		for _, st := range ranked[headLen:] {
			rest = append(rest, st.Track)
		}
		seed := uint64(in.Now.UnixMilli())
		rng := rand.New(rand.NewPCG(seed, seed))
		rng.Shuffle(len(rest), func(i, j int) {
			rest[i], rest[j] = rest[j], rest[i]
		})
		queue = append(queue, rest[:min(limit-len(queue), len(rest))]...)
	}

	return truncate(dedupe(queue), limit)
}

// GenerateQueue ranks with DefaultWeights.
func GenerateQueue(in Input) []track.Track {
	return New(DefaultWeights()).GenerateQueue(in)
}

// dedupe keeps the first occurrence of every track id.
func dedupe(tracks []track.Track) []track.Track {
	seen := make(map[int64]bool, len(tracks))
	out := tracks[:0]
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

func truncate(tracks []track.Track, n int) []track.Track {
	if len(tracks) > n {
		return tracks[:n]
	}
	return tracks
}
