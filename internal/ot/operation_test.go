package ot

import (
	"errors"
	"testing"
)

func TestApplyInsertRetainDelete(t *testing.T) {
	op := Operation{
		{Kind: KindRetain, Count: 5},
		{Kind: KindDelete, Count: 1},
		{Kind: KindInsert, Text: ", world"},
	}
	got, err := Apply("Hello!", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "Hello, world" {
		t.Fatalf("Apply() = %q, want %q", got, "Hello, world")
	}
}

func TestApplyKeepsUnconsumedTail(t *testing.T) {
	op := Operation{{Kind: KindInsert, Text: "X"}}
	got, err := Apply("abc", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "Xabc" {
		t.Fatalf("Apply() = %q, want %q", got, "Xabc")
	}
}

func TestApplyUnicode(t *testing.T) {
	op := Operation{
		{Kind: KindRetain, Count: 2},
		{Kind: KindInsert, Text: "é"},
		{Kind: KindDelete, Count: 1},
	}
	got, err := Apply("héllo", op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "héélo" {
		t.Fatalf("Apply() = %q, want %q", got, "héélo")
	}
}

func TestApplyBounds(t *testing.T) {
	cases := []struct {
		name string
		op   Operation
	}{
		{"retain past end", Operation{{Kind: KindRetain, Count: 10}}},
		{"delete past end", Operation{{Kind: KindRetain, Count: 3}, {Kind: KindDelete, Count: 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Apply("abcd", tc.op); !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("Apply() error = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestApplyMalformed(t *testing.T) {
	if _, err := Apply("abcd", Operation{{Kind: "replace", Count: 1}}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Apply() error = %v, want ErrMalformed", err)
	}
	if _, err := Apply("abcd", Operation{{Kind: KindRetain, Count: -1}}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Apply() error = %v, want ErrMalformed", err)
	}
}

func TestApplyLeavesContentOnError(t *testing.T) {
	content := "abcd"
	_, err := Apply(content, Operation{{Kind: KindRetain, Count: 99}})
	if err == nil {
		t.Fatal("expected error")
	}
	if content != "abcd" {
		t.Fatalf("content mutated: %q", content)
	}
}

func TestCompose(t *testing.T) {
	op1 := Operation{{Kind: KindRetain, Count: 2}, {Kind: KindRetain, Count: 3}}
	op2 := Operation{{Kind: KindInsert, Text: "ab"}, {Kind: KindInsert, Text: "cd"}}
	got := Compose(op1, op2)
	want := Operation{{Kind: KindRetain, Count: 5}, {Kind: KindInsert, Text: "abcd"}}
	if len(got) != len(want) {
		t.Fatalf("Compose() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Compose()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNormalizeDropsEmpty(t *testing.T) {
	got := Normalize(Operation{
		{Kind: KindRetain, Count: 0},
		{Kind: KindInsert, Text: ""},
		{Kind: KindDelete, Count: 2},
	})
	if len(got) != 1 || got[0].Kind != KindDelete || got[0].Count != 2 {
		t.Fatalf("Normalize() = %+v", got)
	}
}

// checkConvergence verifies the transform contract: both application orders
// must produce the same final text.
func checkConvergence(t *testing.T, base string, a, b Operation, aFirst bool) string {
	t.Helper()
	aPrime, bPrime, err := Transform(a, b, aFirst)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	afterA, err := Apply(base, a)
	if err != nil {
		t.Fatalf("Apply(base, a) error = %v", err)
	}
	left, err := Apply(afterA, bPrime)
	if err != nil {
		t.Fatalf("Apply(afterA, bPrime) error = %v", err)
	}

	afterB, err := Apply(base, b)
	if err != nil {
		t.Fatalf("Apply(base, b) error = %v", err)
	}
	right, err := Apply(afterB, aPrime)
	if err != nil {
		t.Fatalf("Apply(afterB, aPrime) error = %v", err)
	}

	if left != right {
		t.Fatalf("diverged: %q vs %q", left, right)
	}
	return left
}

func TestTransformNonOverlapping(t *testing.T) {
	base := "Hello World"
	a := Operation{{Kind: KindInsert, Text: ">"}}
	b := Operation{{Kind: KindRetain, Count: 11}, {Kind: KindInsert, Text: "!"}}
	got := checkConvergence(t, base, a, b, true)
	if got != ">Hello World!" {
		t.Fatalf("converged to %q, want %q", got, ">Hello World!")
	}
}

func TestTransformInsertTie(t *testing.T) {
	base := "ab"
	a := Operation{{Kind: KindRetain, Count: 1}, {Kind: KindInsert, Text: "X"}}
	b := Operation{{Kind: KindRetain, Count: 1}, {Kind: KindInsert, Text: "Y"}}

	if got := checkConvergence(t, base, a, b, true); got != "aXYb" {
		t.Fatalf("aFirst converged to %q, want %q", got, "aXYb")
	}
	if got := checkConvergence(t, base, a, b, false); got != "aYXb" {
		t.Fatalf("bFirst converged to %q, want %q", got, "aYXb")
	}
}

func TestTransformOverlappingDeletes(t *testing.T) {
	base := "abcd"
	a := Operation{{Kind: KindDelete, Count: 2}}
	b := Operation{{Kind: KindRetain, Count: 1}, {Kind: KindDelete, Count: 2}}
	if got := checkConvergence(t, base, a, b, true); got != "d" {
		t.Fatalf("converged to %q, want %q", got, "d")
	}
}

func TestTransformInsertAgainstDelete(t *testing.T) {
	base := "abc"
	a := Operation{{Kind: KindInsert, Text: "X"}}
	b := Operation{{Kind: KindDelete, Count: 1}}
	if got := checkConvergence(t, base, a, b, true); got != "Xbc" {
		t.Fatalf("converged to %q, want %q", got, "Xbc")
	}
}

func TestTransformAgainstImplicitTail(t *testing.T) {
	base := "abcdef"
	a := Operation{{Kind: KindDelete, Count: 1}}
	b := Operation{{Kind: KindRetain, Count: 3}, {Kind: KindDelete, Count: 3}}
	if got := checkConvergence(t, base, a, b, true); got != "bc" {
		t.Fatalf("converged to %q, want %q", got, "bc")
	}
}
