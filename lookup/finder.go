package lookup

import (
	"context"
	"fmt"
	"math"
	"log/slog"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// Finder looks up the near duplicates of an item.
type Finder struct {
	pairs    storage.PairLookup
	minScore float64
	limit    int
	logger   *slog.Logger
}

// Option configures a Finder.
type Option func(*Finder) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Finder) error {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
		return nil
	}
}

// WithMinScore drops matches scoring below score. Stored pairs already meet
// the threshold of the run that produced them, so this only narrows further.
func WithMinScore(score float64) Option {
	return func(f *Finder) error {
		if math.IsNaN(score) || score < -1 || score > 1 {
			return fmt.Errorf("%w: got %v", ErrInvalidMinScore, score)
		}
		f.minScore = score
		return nil
	}
}

// WithLimit caps the number of matches returned. Zero means no limit.
func WithLimit(limit int) Option {
	return func(f *Finder) error {
		if limit < 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
		}
		f.limit = limit
		return nil
	}
}

// NewFinder creates a new finder over pairs.
func NewFinder(pairs storage.PairLookup, opts ...Option) (*Finder, error) {
	if pairs == nil {
		return nil, ErrPairLookupRequired
	}

	f := &Finder{
		pairs:    pairs,
		minScore: -1,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Similar returns the items stored as near duplicates of id, by score
// descending and then ID ascending. An unknown id has no matches.
func (f *Finder) Similar(ctx context.Context, id core.ID) ([]core.Match, error) {
	matches, err := f.pairs.SimilarTo(ctx, id, f.minScore, f.limit)
	if err != nil {
		f.logger.Error("error looking up similar items", "id", id, "err", err)
		return nil, err
	}
	if matches == nil {
		matches = []core.Match{}
	}
	f.logger.Debug("looked up similar items", "id", id, "matches", len(matches))
	return matches, nil
}

// Best returns the single closest match of id, or false if it has none.
func (f *Finder) Best(ctx context.Context, id core.ID) (core.Match, bool, error) {
	matches, err := f.pairs.SimilarTo(ctx, id, f.minScore, 1)
	if err != nil {
		return core.Match{}, false, err
	}
	if len(matches) == 0 {
		return core.Match{}, false, nil
	}
	return matches[0], true, nil
}
