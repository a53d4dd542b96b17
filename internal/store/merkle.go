package store

import (
	"sort"

	"golang.org/x/crypto/blake2b"
)

// computeRoot builds a binary Merkle tree over a canonical lexicographic
// ordering of the committed key-value pairs, chunk-hashed with blake2b-256,
// and returns the root. An empty keyspace roots to the zero-leaf hash.
func (s *Store) computeRoot() [32]byte {
	keys := make([]string, 0, len(s.committed))
	for k := range s.committed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		return blake2b.Sum256(nil)
	}

	leaves := make([][32]byte, len(keys))
	for i, k := range keys {
		leaves[i] = leafHash([]byte(k), s.committed[k])
	}
	return merkleRoot(leaves)
}

func leafHash(key, val []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(key)
	h.Write(val)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// merkleRoot folds a list of leaf hashes pairwise up to a single root. An
// odd node at any level is promoted unchanged (duplicated-last-leaf
// schemes are avoided to keep the tree's shape a pure function of the
// leaf count).
func merkleRoot(level [][32]byte) [32]byte {
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, nodeHash(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

func nodeHash(left, right [32]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyPath recomputes a leaf's inclusion given a sibling path, returning
// true if the recomputed root matches want. siblings is ordered from the
// leaf's level upward; isRight indicates whether the sibling at the same
// index sits to the right of the running hash.
func VerifyPath(leaf [32]byte, siblings [][32]byte, isRight []bool, want [32]byte) bool {
	cur := leaf
	for i, sib := range siblings {
		if isRight[i] {
			cur = nodeHash(cur, sib)
		} else {
			cur = nodeHash(sib, cur)
		}
	}
	return cur == want
}
