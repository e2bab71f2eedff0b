package middleware

// IndexedItem pairs an item with its original position, used to splice
// selectively-handled results back into place after a normal/relevant
// partition.
type IndexedItem[T any] struct {
	Index int
	Item  T
}

// PickOutSpecialItems partitions items into normal (isSpecial returns
// false) and special (isSpecial returns true, tagged with their original
// index), preserving relative order within each group.
func PickOutSpecialItems[T any](items []T, isSpecial func(T) bool) (normal []T, special []IndexedItem[T]) {
	for i, item := range items {
		if isSpecial(item) {
			special = append(special, IndexedItem[T]{Index: i, Item: item})
		} else {
			normal = append(normal, item)
		}
	}
	return normal, special
}

// PutInSpecialResults is the inverse of PickOutSpecialItems: it inserts each
// special result back at its original index into normalResults, producing a
// full-length slice in original order.
func PutInSpecialResults[T any](normalResults []T, specialResults []IndexedItem[T]) []T {
	total := len(normalResults) + len(specialResults)
	out := make([]T, 0, total)
	out = append(out, normalResults...)

	// Insertion must happen in ascending index order so each insert lands
	// at the position it would have occupied in the fully-assembled slice.
	sorted := make([]IndexedItem[T], len(specialResults))
	copy(sorted, specialResults)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Index > sorted[j].Index; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	for _, s := range sorted {
		idx := s.Index
		if idx > len(out) {
			idx = len(out)
		}
		out = append(out, *new(T))
		copy(out[idx+1:], out[idx:])
		out[idx] = s.Item
	}
	return out
}
