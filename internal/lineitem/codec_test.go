package lineitem

import (
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"testing"
)

func TestParseEmptyString(t *testing.T) {
	items, err := Parse("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %v", items)
	}
}

func TestParseValid(t *testing.T) {
	items, err := Parse("1:2,15:1,007:03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Item{{1, 2}, {15, 1}, {7, 3}}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("item %d: expected %+v, got %+v", i, want[i], items[i])
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		",",
		"1:2,",
		",1:2",
		"1:2,,3:4",
		"1:0",
		"1:00",
		"1",
		"1:",
		":2",
		"a:2",
		"1:2 ",
		" 1:2",
		"1:2;3:4",
		"1:-2",
		"-1:2",
		"1:2:3",
		"1:2.5",
		"1234567890123456789:1",
		"1:1234567890",
	}
	for _, tc := range cases {
		if _, err := Parse(tc); !errors.Is(err, ErrMalformedLineItems) {
			t.Fatalf("%q: expected ErrMalformedLineItems, got %v", tc, err)
		}
	}
}

func TestParseAcceptsUpperBounds(t *testing.T) {
	items, err := Parse("999999999999999999:999999999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].MaterialID != 999999999999999999 || items[0].Quantity != 999999999 {
		t.Fatalf("unexpected item %+v", items[0])
	}
}

func TestEncodeCanonical(t *testing.T) {
	got := Encode([]Item{{9, 1}, {2, 5}, {2, 3}})
	if got != "2:3,2:5,9:1" {
		t.Fatalf("unexpected encoding %q", got)
	}
	if Encode(nil) != "" {
		t.Fatalf("expected empty encoding for no items")
	}
}

func multiset(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, strconv.FormatInt(it.MaterialID, 10)+":"+strconv.FormatInt(it.Quantity, 10))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func TestParseEncodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		count := rng.Intn(6)
		parts := make([]string, 0, count)
		for i := 0; i < count; i++ {
			id := rng.Int63n(1_000_000)
			qty := rng.Int63n(500) + 1
			prefix := strings.Repeat("0", rng.Intn(2))
			parts = append(parts, prefix+strconv.FormatInt(id, 10)+":"+strconv.FormatInt(qty, 10))
		}
		encoded := strings.Join(parts, ",")

		first, err := Parse(encoded)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", encoded, err)
		}
		second, err := Parse(Encode(first))
		if err != nil {
			t.Fatalf("%q: re-parse failed: %v", encoded, err)
		}
		if multiset(first) != multiset(second) {
			t.Fatalf("%q: round trip mismatch %v vs %v", encoded, first, second)
		}
	}
}

func TestCheckUnique(t *testing.T) {
	if err := CheckUnique([]Item{{1, 1}, {2, 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckUnique([]Item{{1, 1}, {1, 2}}); !errors.Is(err, ErrDuplicateLineItem) {
		t.Fatalf("expected ErrDuplicateLineItem, got %v", err)
	}
}
