package cmrdt

import "testing"

type sampleOp struct {
	Kind  string
	Value int
}

func TestHashOfDeterministic(t *testing.T) {
	a := sampleOp{Kind: "insert", Value: 1}
	b := sampleOp{Kind: "insert", Value: 1}
	c := sampleOp{Kind: "insert", Value: 2}

	if HashOf(a) != HashOf(b) {
		t.Error("identical operations must hash identically")
	}
	if HashOf(a) == HashOf(c) {
		t.Error("distinct operations must hash differently")
	}
}

func TestHistorySentinel(t *testing.T) {
	h := NewHistory()
	if h.K != 0 {
		t.Fatalf("expected fresh history clock 0, got %d", h.K)
	}
	if len(h.Data) != 1 || h.Data[0] != nil {
		t.Fatalf("expected single nil sentinel, got %v", h.Data)
	}
}

func TestHistoryAddAndContains(t *testing.T) {
	h := NewHistory()
	hash1 := HashOf(sampleOp{Kind: "a"})
	hash2 := HashOf(sampleOp{Kind: "b"})

	k := h.Add(&hash1)
	if k != 1 {
		t.Fatalf("expected clock 1 after first add, got %d", k)
	}
	h.Add(&hash2)

	if !h.Contains(hash1) || !h.Contains(hash2) {
		t.Error("expected both hashes to be contained")
	}

	unknown := HashOf(sampleOp{Kind: "unseen"})
	if h.Contains(unknown) {
		t.Error("unexpected hash reported as contained")
	}
}

func TestHistoryHappenedBefore(t *testing.T) {
	h := NewHistory()
	hash1 := HashOf(sampleOp{Kind: "first"})
	hash2 := HashOf(sampleOp{Kind: "second"})
	h.Add(&hash1)
	h.Add(&hash2)

	if !h.HappenedBefore(hash1, hash2) {
		t.Error("expected hash1 to have happened before hash2")
	}
	if h.HappenedBefore(hash2, hash1) {
		t.Error("hash2 must not be reported as happening before hash1")
	}
}

func TestHistoryGetHashes(t *testing.T) {
	h := NewHistory()
	hash1 := HashOf(sampleOp{Kind: "x"})
	h.Add(&hash1)

	hashes := h.GetHashes()
	if len(hashes) != 1 || !hashes[hash1] {
		t.Fatalf("expected {hash1}, got %v", hashes)
	}
}
