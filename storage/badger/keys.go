package badger

import (
	"encoding/binary"

	"github.com/poiesic/neardup/core"
)

// Key prefixes for different data types.
// Every prefix ends in ':' so no prefix is a prefix of another.
const (
	embeddingPrefix   = "embrec:"
	pairPrefix        = "simpair:"
	pairReversePrefix = "simpairr:"
	runSummaryKey     = "runsum:last"
)

const idSize = 8

// putSortableID writes id so that byte order matches numeric order,
// including negative ids.
func putSortableID(buf []byte, id core.ID) {
	binary.BigEndian.PutUint64(buf, uint64(id)^(1<<63))
}

// readSortableID reverses putSortableID.
func readSortableID(buf []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(buf) ^ (1 << 63))
}

// makeEmbeddingKey generates a key for an embedding by ID.
// Format: prefix + id
func makeEmbeddingKey(id core.ID) []byte {
	buf := make([]byte, len(embeddingPrefix)+idSize)
	offset := copy(buf, embeddingPrefix)
	putSortableID(buf[offset:], id)
	return buf
}

// makePairKey generates the primary key for a canonical pair.
// Format: prefix + low + high
func makePairKey(low, high core.ID) []byte {
	return makeCompositeKey(pairPrefix, low, high)
}

// makePairReverseKey generates the index key used to find pairs by their high id.
// Format: prefix + high + low
func makePairReverseKey(low, high core.ID) []byte {
	return makeCompositeKey(pairReversePrefix, high, low)
}

// makePartialPairKey generates a key prefix matching every pair with the given first id.
func makePartialPairKey(prefix string, first core.ID) []byte {
	buf := make([]byte, len(prefix)+idSize)
	offset := copy(buf, prefix)
	putSortableID(buf[offset:], first)
	return buf
}

func makeCompositeKey(prefix string, first, second core.ID) []byte {
	buf := make([]byte, len(prefix)+2*idSize)
	offset := copy(buf, prefix)
	putSortableID(buf[offset:], first)
	offset += idSize
	putSortableID(buf[offset:], second)
	return buf
}

// splitCompositeKey extracts both ids from a composite key with the given prefix.
func splitCompositeKey(prefix string, key []byte) (first, second core.ID, ok bool) {
	if len(key) != len(prefix)+2*idSize {
		return 0, 0, false
	}
	offset := len(prefix)
	first = readSortableID(key[offset:])
	second = readSortableID(key[offset+idSize:])
	return first, second, true
}
