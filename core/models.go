package core

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is the stable external identifier of an embedded item.
// IDs are assigned by the embedding source and are never generated here.
type ID int64

// Embedding is a single (id, vector) record supplied by an embedding source.
// All embeddings taking part in one run must share the same dimension.
type Embedding struct {
	ID     ID
	Vector []float32
}

// Dimension returns the length of the embedding vector.
func (e *Embedding) Dimension() int {
	return len(e.Vector)
}

// Pair is a canonical near-duplicate relationship between two items.
// Low is always strictly less than High, so {a,b} and {b,a} share one key.
type Pair struct {
	Low   ID
	High  ID
	Score float64
}

// NewPair builds a canonical pair from two ids in any order.
func NewPair(a, b ID, score float64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b, Score: score}
}

// Other returns the id on the opposite side of the pair from id.
func (p Pair) Other(id ID) ID {
	if p.Low == id {
		return p.High
	}
	return p.Low
}

// Match is one side of a stored pair as seen from a looked-up item.
type Match struct {
	ID    ID
	Score float64
}

// RunSummary reports the outcome of a single similarity run.
// It describes the run; it does not identify the stored pair set, which every
// run replaces wholesale.
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Embeddings    int
	Dimension     int
	Comparisons   int64
	PairsFound    int
	PairsStored   int
	FailedBatches int
	Threshold     float64
	ChunkSize     int
	Fingerprint   uint64
}

// Elapsed returns the wall clock duration of the run.
func (s *RunSummary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Complete reports whether every pair found was also stored.
func (s *RunSummary) Complete() bool {
	return s.FailedBatches == 0 && s.PairsFound == s.PairsStored
}

// Comparisons returns the number of unordered pairs among n items.
func Comparisons(n int) int64 {
	if n < 2 {
		return 0
	}
	return int64(n) * int64(n-1) / 2
}

// Fingerprint computes a BLAKE2b-64 digest over the ids and vector bits of
// the embeddings in the given order. Identical inputs yield identical digests.
func Fingerprint(embeddings []*Embedding) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	var buf [8]byte
	for _, e := range embeddings {
		binary.LittleEndian.PutUint64(buf[:], uint64(e.ID))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(len(e.Vector)))
		h.Write(buf[:])
		for _, v := range e.Vector {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			h.Write(buf[:4])
		}
	}
	return binary.LittleEndian.Uint64(h.Sum(nil))
}
