package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// IDMUS serializes an ID as a zig-zag varint.
var IDMUS = idMUS{}

// EmbeddingMUS serializes an Embedding as id, length and raw float32 components.
var EmbeddingMUS = embeddingMUS{}

// RunSummaryMUS serializes a RunSummary field by field in declaration order.
var RunSummaryMUS = runSummaryMUS{}

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Int64.Marshal(int64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	i, n, err := varint.Int64.Unmarshal(bs)
	return ID(i), n, err
}

func (idMUS) Size(v ID) (size int) {
	return varint.Int64.Size(int64(v))
}

func (idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Int64.Skip(bs)
}

type embeddingMUS struct{}

func (embeddingMUS) Marshal(v Embedding, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += varint.Int.Marshal(len(v.Vector), bs[n:])
	for _, f := range v.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (embeddingMUS) Unmarshal(bs []byte) (v Embedding, n int, err error) {
	v.ID, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	length, n1, err := varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if length < 0 || length > (len(bs)-n)/4 {
		err = ErrMalformedVector
		return
	}
	v.Vector = make([]float32, length)
	for i := range v.Vector {
		v.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (embeddingMUS) Size(v Embedding) (size int) {
	size = IDMUS.Size(v.ID)
	size += varint.Int.Size(len(v.Vector))
	for _, f := range v.Vector {
		size += raw.Float32.Size(f)
	}
	return size
}

func (embeddingMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = EmbeddingMUS.Unmarshal(bs)
	return
}

type runSummaryMUS struct{}

func (runSummaryMUS) Marshal(v RunSummary, bs []byte) (n int) {
	n = ord.String.Marshal(v.RunID, bs)
	n += varint.Int64.Marshal(v.StartedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(v.FinishedAt.UnixMicro(), bs[n:])
	n += varint.Int.Marshal(v.Embeddings, bs[n:])
	n += varint.Int.Marshal(v.Dimension, bs[n:])
	n += varint.Int64.Marshal(v.Comparisons, bs[n:])
	n += varint.Int.Marshal(v.PairsFound, bs[n:])
	n += varint.Int.Marshal(v.PairsStored, bs[n:])
	n += varint.Int.Marshal(v.FailedBatches, bs[n:])
	n += raw.Float64.Marshal(v.Threshold, bs[n:])
	n += varint.Int.Marshal(v.ChunkSize, bs[n:])
	n += raw.Uint64.Marshal(v.Fingerprint, bs[n:])
	return n
}

func (runSummaryMUS) Unmarshal(bs []byte) (v RunSummary, n int, err error) {
	var (
		n1      int
		started int64
		ended   int64
	)
	v.RunID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	started, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.StartedAt = time.UnixMicro(started).UTC()
	ended, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FinishedAt = time.UnixMicro(ended).UTC()
	ints := []*int{&v.Embeddings, &v.Dimension}
	for _, p := range ints {
		*p, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.Comparisons, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	ints = []*int{&v.PairsFound, &v.PairsStored, &v.FailedBatches}
	for _, p := range ints {
		*p, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.Threshold, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkSize, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Fingerprint, n1, err = raw.Uint64.Unmarshal(bs[n:])
	n += n1
	return
}

func (runSummaryMUS) Size(v RunSummary) (size int) {
	size = ord.String.Size(v.RunID)
	size += varint.Int64.Size(v.StartedAt.UnixMicro())
	size += varint.Int64.Size(v.FinishedAt.UnixMicro())
	size += varint.Int.Size(v.Embeddings)
	size += varint.Int.Size(v.Dimension)
	size += varint.Int64.Size(v.Comparisons)
	size += varint.Int.Size(v.PairsFound)
	size += varint.Int.Size(v.PairsStored)
	size += varint.Int.Size(v.FailedBatches)
	size += raw.Float64.Size(v.Threshold)
	size += varint.Int.Size(v.ChunkSize)
	size += raw.Uint64.Size(v.Fingerprint)
	return size
}

func (runSummaryMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = RunSummaryMUS.Unmarshal(bs)
	return
}
