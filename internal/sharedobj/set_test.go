package sharedobj

import "testing"

func TestSet(t *testing.T) {
	s := Set[string]{}
	if s.Contains("a") {
		t.Fatal("empty set contains \"a\"")
	}

	s.Add("a")
	s.Add("b")
	s.Add("a") // idempotent

	if !s.Contains("a") || !s.Contains("b") {
		t.Fatal("set missing added elements")
	}
	if s.Contains("c") {
		t.Fatal("set contains element never added")
	}

	elems := s.Elements()
	if len(elems) != 2 {
		t.Fatalf("Elements() = %v, want 2 elements", elems)
	}
}
