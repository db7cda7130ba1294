package utils

import "testing"

func TestNormalizeCellText(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"EBR", "EBR"},
		{"  Secundaria  ", "Secundaria"},
		{"", ""},
		{"   ", ""},
		{"nan", ""},
		{"NaN", ""},
		{"#N/A", ""},
		{"null", ""},
		{"None", ""},
		{"Nanay", "Nanay"},
	}
	for _, c := range cases {
		if got := NormalizeCellText(c.in); got != c.expected {
			t.Fatalf("NormalizeCellText(%q) = %q, expected %q", c.in, got, c.expected)
		}
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 7
	if got := DereferencePtr(&v); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := DereferencePtr[int](nil); got != 0 {
		t.Fatalf("expected zero value, got %d", got)
	}
	if got := DereferencePtr[int](nil, 42); got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	expected := []int{3, 1, 2}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}
