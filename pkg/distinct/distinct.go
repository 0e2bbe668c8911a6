// Package distinct builds deduplicated item lists together with the index
// remap needed to rewrite references into the original list.
package distinct

// CreateDistinctMap collapses items with equal keys.
//
// distinct keeps the first occurrence of every key in input order and
// remap[i] is the index into distinct of items[i]. changed is false when no
// duplicates were found.
func CreateDistinctMap[T any, K comparable](items []T, key func(T) K) (distinct []T, remap []int, changed bool) {
	remap = make([]int, len(items))
	seen := make(map[K]int, len(items))
	distinct = make([]T, 0, len(items))

	for i, item := range items {
		k := key(item)
		if idx, ok := seen[k]; ok {
			remap[i] = idx
			changed = true
			continue
		}
		idx := len(distinct)
		seen[k] = idx
		distinct = append(distinct, item)
		remap[i] = idx
	}

	return distinct, remap, changed
}

// CreateDistinct is CreateDistinctMap keyed on the items themselves.
func CreateDistinct[T comparable](items []T) (distinct []T, remap []int, changed bool) {
	return CreateDistinctMap(items, func(item T) T { return item })
}
