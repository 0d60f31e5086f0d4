package hash

import (
	"testing"
)

func leafHash(seed byte) Hash {
	var h Hash
	h[31] = seed
	return Sum256(h[:])
}

// TestMerkleRoundTrip exercises testable property 3: verify(create_root(xs),
// xs) holds for every non-empty leaf set, and differing leaf sets produce
// differing roots.
func TestMerkleRoundTrip(t *testing.T) {
	tests := [][]Hash{
		{leafHash(1)},
		{leafHash(1), leafHash(2)},
		{leafHash(1), leafHash(2), leafHash(3)},
		{leafHash(1), leafHash(2), leafHash(3), leafHash(4), leafHash(5)},
	}

	var roots []Hash
	for i, leaves := range tests {
		root := CreateMerkleRoot(leaves)
		if !VerifyMerkleRoot(root, leaves) {
			t.Fatalf("case %d: verify(create_root(xs), xs) should hold", i)
		}
		roots = append(roots, root)
	}

	for i := range roots {
		for j := i + 1; j < len(roots); j++ {
			if roots[i] == roots[j] {
				t.Fatalf("distinct leaf sets %d and %d produced the same root", i, j)
			}
		}
	}
}

// TestMerkleOddCountDuplicatesLast ensures the odd-count rule duplicates the
// last node rather than, say, hashing it alone.
func TestMerkleOddCountDuplicatesLast(t *testing.T) {
	leaves := []Hash{leafHash(1), leafHash(2), leafHash(3)}
	want := CreateMerkleRoot([]Hash{leaves[0], leaves[1], leaves[2], leaves[2]})
	got := CreateMerkleRoot(leaves)
	if got != want {
		t.Fatalf("odd leaf count did not duplicate the last node: got %s want %s", got, want)
	}
}

func TestMerkleEmpty(t *testing.T) {
	if root := CreateMerkleRoot(nil); root != ZeroHash {
		t.Fatalf("empty leaf set should yield the zero hash, got %s", root)
	}
}

func TestHashLessOrEqual(t *testing.T) {
	target := Hash{}
	for i := range target {
		target[i] = 0xff
	}
	small := Hash{}
	small[31] = 1
	if !small.LessOrEqual(target) {
		t.Fatalf("small hash should compare <= the max target")
	}
	if target.LessOrEqual(small) {
		t.Fatalf("max target should not compare <= a small hash")
	}
}
