package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/poiesic/neardup/core"
)

var errMockFailure = errors.New("mock failure")

// mockSource serves a fixed slice of embeddings page by page.
type mockSource struct {
	embeddings []*core.Embedding
	// failAt makes the call with this index (1-based) fail; 0 disables.
	failAt int
	// failAlways makes every call fail.
	failAlways bool
	calls      int
	offsets    []int
}

func (m *mockSource) ListEmbeddings(ctx context.Context, offset, limit int) ([]*core.Embedding, error) {
	m.calls++
	m.offsets = append(m.offsets, offset)
	if m.failAlways || m.calls == m.failAt {
		return nil, errMockFailure
	}
	if offset >= len(m.embeddings) {
		return nil, nil
	}
	end := min(offset+limit, len(m.embeddings))
	return m.embeddings[offset:end], nil
}

// mockStore is a strict in-memory pair store: inserting a key that already
// exists is an error, so a pipeline that double-writes a pair is caught.
type mockStore struct {
	mu       sync.Mutex
	pairs    map[[2]core.ID]float64
	clears   int
	upserts  int
	clearErr error
	// failUpserts makes the first n upsert calls fail without storing.
	failUpserts int
}

func newMockStore() *mockStore {
	return &mockStore{pairs: make(map[[2]core.ID]float64)}
}

func (m *mockStore) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.pairs = make(map[[2]core.ID]float64)
	return nil
}

func (m *mockStore) UpsertPairs(ctx context.Context, pairs ...core.Pair) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failUpserts > 0 {
		m.failUpserts--
		return 0, errMockFailure
	}
	for _, p := range pairs {
		if err := core.ValidatePair(p); err != nil {
			return 0, err
		}
		if _, exists := m.pairs[[2]core.ID{p.Low, p.High}]; exists {
			return 0, fmt.Errorf("duplicate key (%d, %d)", p.Low, p.High)
		}
	}
	for _, p := range pairs {
		m.pairs[[2]core.ID{p.Low, p.High}] = p.Score
	}
	return len(pairs), nil
}

func (m *mockStore) sorted() []core.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]core.Pair, 0, len(m.pairs))
	for k, score := range m.pairs {
		result = append(result, core.Pair{Low: k[0], High: k[1], Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Low != result[j].Low {
			return result[i].Low < result[j].Low
		}
		return result[i].High < result[j].High
	})
	return result
}

// mockRuns records saved summaries.
type mockRuns struct {
	saved []*core.RunSummary
	err   error
}

func (m *mockRuns) SaveRun(ctx context.Context, summary *core.RunSummary) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, summary)
	return nil
}

func (m *mockRuns) LoadLastRun(ctx context.Context) (*core.RunSummary, error) {
	if len(m.saved) == 0 {
		return nil, nil
	}
	return m.saved[len(m.saved)-1], nil
}
