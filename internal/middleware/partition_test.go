package middleware

import (
	"reflect"
	"testing"
)

func TestPickOutSpecialItemsPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	normal, special := PickOutSpecialItems(items, func(v int) bool { return v%2 == 0 })

	if !reflect.DeepEqual(normal, []int{1, 3, 5}) {
		t.Fatalf("normal = %v", normal)
	}
	wantSpecial := []IndexedItem[int]{{Index: 1, Item: 2}, {Index: 3, Item: 4}}
	if !reflect.DeepEqual(special, wantSpecial) {
		t.Fatalf("special = %v, want %v", special, wantSpecial)
	}
}

func TestPutInSpecialResultsRoundTrip(t *testing.T) {
	items := []string{"a", "B", "c", "D", "e"}
	isSpecial := func(s string) bool { return s == "B" || s == "D" }
	normal, special := PickOutSpecialItems(items, isSpecial)

	// Simulate independent processing of each group that doesn't change length.
	normalResults := make([]string, len(normal))
	copy(normalResults, normal)
	specialResults := make([]IndexedItem[string], len(special))
	for i, s := range special {
		specialResults[i] = IndexedItem[string]{Index: s.Index, Item: s.Item}
	}

	got := PutInSpecialResults(normalResults, specialResults)
	if !reflect.DeepEqual(got, items) {
		t.Fatalf("got %v, want %v", got, items)
	}
}

func TestPutInSpecialResultsNoSpecials(t *testing.T) {
	got := PutInSpecialResults([]int{1, 2, 3}, nil)
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("got %v", got)
	}
}

func TestPutInSpecialResultsAllSpecial(t *testing.T) {
	special := []IndexedItem[int]{{Index: 0, Item: 10}, {Index: 1, Item: 20}}
	got := PutInSpecialResults(nil, special)
	if !reflect.DeepEqual(got, []int{10, 20}) {
		t.Fatalf("got %v", got)
	}
}

func TestPutInSpecialResultsOutOfOrderInput(t *testing.T) {
	// Specials arrive in arbitrary order; PutInSpecialResults must sort by
	// index before splicing so the result matches original positions.
	special := []IndexedItem[string]{{Index: 3, Item: "D"}, {Index: 1, Item: "B"}}
	normal := []string{"a", "c", "e"}
	got := PutInSpecialResults(normal, special)
	want := []string{"a", "B", "c", "D", "e"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
