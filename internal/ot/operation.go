// Package ot implements the content operation model used for live edits:
// ordered insert/retain/delete components applied against a text buffer.
package ot

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Component is one step of an operation. Count carries the length for
// retain/delete, Text carries the literal for insert.
type Component struct {
	Kind  Kind   `json:"kind"`
	Count int    `json:"count,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Operation is an ordered component sequence. Components past the end of the
// explicit sequence are treated as a retain to the end of the content.
type Operation []Component

var (
	ErrOutOfBounds = errors.New("operation runs past end of content")
	ErrMalformed   = errors.New("malformed operation component")
)

// Apply walks the components left to right with a cursor into content.
// Insert splices text at the cursor, retain advances it, delete consumes
// characters without emitting them. The unconsumed tail is kept.
func Apply(content string, op Operation) (string, error) {
	runes := []rune(content)
	out := make([]rune, 0, len(runes))
	pos := 0
	for _, c := range op {
		switch c.Kind {
		case KindInsert:
			if c.Text == "" {
				continue
			}
			out = append(out, []rune(c.Text)...)
		case KindRetain:
			if c.Count < 0 {
				return "", fmt.Errorf("%w: retain %d", ErrMalformed, c.Count)
			}
			if pos+c.Count > len(runes) {
				return "", fmt.Errorf("%w: retain %d at offset %d of %d", ErrOutOfBounds, c.Count, pos, len(runes))
			}
			out = append(out, runes[pos:pos+c.Count]...)
			pos += c.Count
		case KindDelete:
			if c.Count < 0 {
				return "", fmt.Errorf("%w: delete %d", ErrMalformed, c.Count)
			}
			if pos+c.Count > len(runes) {
				return "", fmt.Errorf("%w: delete %d at offset %d of %d", ErrOutOfBounds, c.Count, pos, len(runes))
			}
			pos += c.Count
		default:
			return "", fmt.Errorf("%w: kind %q", ErrMalformed, c.Kind)
		}
	}
	out = append(out, runes[pos:]...)
	return string(out), nil
}

// Compose concatenates two operations into one, coalescing adjacent
// components of the same kind. Applying the result equals applying op1 to
// the content and op2 to op1's output only when op2 was built against that
// output; callers are responsible for that ordering.
func Compose(op1, op2 Operation) Operation {
	merged := make(Operation, 0, len(op1)+len(op2))
	merged = append(merged, op1...)
	merged = append(merged, op2...)
	return Normalize(merged)
}

// Normalize drops empty components and merges adjacent ones of equal kind.
func Normalize(op Operation) Operation {
	out := make(Operation, 0, len(op))
	for _, c := range op {
		if (c.Kind == KindRetain || c.Kind == KindDelete) && c.Count == 0 {
			continue
		}
		if c.Kind == KindInsert && c.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Kind == c.Kind {
			switch c.Kind {
			case KindInsert:
				out[n-1].Text += c.Text
			default:
				out[n-1].Count += c.Count
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// Transform rewrites two operations made against the same base content so
// that each can be applied after the other: Apply(Apply(s, a), b') and
// Apply(Apply(s, b), a') yield identical text. aFirst breaks the tie when
// both operations insert at the same position.
func Transform(a, b Operation, aFirst bool) (Operation, Operation, error) {
	var aPrime, bPrime Operation

	ai, bi := 0, 0
	var aRem, bRem Component
	aHave, bHave := false, false

	nextA := func() bool {
		for !aHave && ai < len(a) {
			aRem = a[ai]
			ai++
			if componentLen(aRem) > 0 {
				aHave = true
			}
		}
		return aHave
	}
	nextB := func() bool {
		for !bHave && bi < len(b) {
			bRem = b[bi]
			bi++
			if componentLen(bRem) > 0 {
				bHave = true
			}
		}
		return bHave
	}

	for nextA() || nextB() {
		// Inserts consume no base content; emit them first. An insert on
		// one side becomes a retain of the inserted length on the other.
		if aHave && aRem.Kind == KindInsert && (aFirst || !bHave || bRem.Kind != KindInsert) {
			aPrime = append(aPrime, aRem)
			bPrime = append(bPrime, Component{Kind: KindRetain, Count: runeLen(aRem.Text)})
			aHave = false
			continue
		}
		if bHave && bRem.Kind == KindInsert {
			bPrime = append(bPrime, bRem)
			aPrime = append(aPrime, Component{Kind: KindRetain, Count: runeLen(bRem.Text)})
			bHave = false
			continue
		}

		// One side exhausted: the implicit trailing retain absorbs the rest.
		if !aHave {
			bPrime = append(bPrime, bRem)
			bHave = false
			continue
		}
		if !bHave {
			aPrime = append(aPrime, aRem)
			aHave = false
			continue
		}

		if aRem.Count < 0 || bRem.Count < 0 {
			return nil, nil, fmt.Errorf("%w: negative count", ErrMalformed)
		}

		n := aRem.Count
		if bRem.Count < n {
			n = bRem.Count
		}
		switch {
		case aRem.Kind == KindRetain && bRem.Kind == KindRetain:
			aPrime = append(aPrime, Component{Kind: KindRetain, Count: n})
			bPrime = append(bPrime, Component{Kind: KindRetain, Count: n})
		case aRem.Kind == KindDelete && bRem.Kind == KindDelete:
			// Both deleted the same span; neither needs to redo it.
		case aRem.Kind == KindDelete && bRem.Kind == KindRetain:
			aPrime = append(aPrime, Component{Kind: KindDelete, Count: n})
		case aRem.Kind == KindRetain && bRem.Kind == KindDelete:
			bPrime = append(bPrime, Component{Kind: KindDelete, Count: n})
		default:
			return nil, nil, fmt.Errorf("%w: kinds %q/%q", ErrMalformed, aRem.Kind, bRem.Kind)
		}
		aRem.Count -= n
		bRem.Count -= n
		aHave = aRem.Count > 0
		bHave = bRem.Count > 0
	}

	return Normalize(aPrime), Normalize(bPrime), nil
}

func componentLen(c Component) int {
	if c.Kind == KindInsert {
		return runeLen(c.Text)
	}
	return c.Count
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
