package driverid

import "testing"

func TestMarshalUnmarshalTextRoundTrips(t *testing.T) {
	cases := []ID{FileTree, Driver(0), Driver(42)}
	for _, id := range cases {
		text, err := id.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got ID
		if err := got.UnmarshalText(text); err != nil {
			t.Fatal(err)
		}
		if got != id {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, id)
		}
	}
}

func TestIsFileTree(t *testing.T) {
	if !FileTree.IsFileTree() {
		t.Error("expected FileTree sentinel to report IsFileTree")
	}
	if Driver(1).IsFileTree() {
		t.Error("expected a concrete driver ID to not report IsFileTree")
	}
}
