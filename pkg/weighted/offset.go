package weighted

// Offsetable is a vertex stream producer that occupies a contiguous range of
// vertex cache slots on a set of nodes.
type Offsetable interface {
	VertexCount() int
	AttachIndices() []int
	ModifyVertexOffset(offset int)
}

// NoValidOffset is the start assigned when no blocked range end can hold an
// item; it marks the end of the vertex cache.
const NoValidOffset = 0xFFFF

type slotRange struct {
	start, end int
}

func (r slotRange) overlaps(start, end int) bool {
	return start < r.end && r.start < end
}

// PlanVertexOffsets assigns every item a start slot so that, per node, the
// ranges of all items touching that node never overlap.
//
// Items are placed in input order. An item reserves its range on every node
// from its lowest to its highest attach index, including nodes in between it
// does not write to. The first item touching a free span starts at 0; later
// items only try starts equal to the end of an already reserved range and
// take the lowest one that fits. Gaps before the first reserved range are
// never reused.
//
// ModifyVertexOffset is called for every item with a nonzero start. The
// chosen starts are returned in item order.
func PlanVertexOffsets[T Offsetable](items []T) []int {
	starts := make([]int, len(items))

	nodeCount := 0
	for _, item := range items {
		for _, idx := range item.AttachIndices() {
			if idx+1 > nodeCount {
				nodeCount = idx + 1
			}
		}
	}

	reserved := make([][]slotRange, nodeCount)

	for i, item := range items {
		indices := item.AttachIndices()
		if len(indices) == 0 {
			continue
		}

		minNode, maxNode := indices[0], indices[0]
		for _, idx := range indices[1:] {
			minNode = min(minNode, idx)
			maxNode = max(maxNode, idx)
		}

		var blocked []slotRange
		for n := minNode; n <= maxNode; n++ {
			blocked = append(blocked, reserved[n]...)
		}

		count := item.VertexCount()
		start := 0
		if len(blocked) > 0 {
			start = NoValidOffset
			for _, candidate := range blocked {
				c := candidate.end
				if c >= start {
					continue
				}
				if fits(blocked, c, c+count) {
					start = c
				}
			}
		}

		r := slotRange{start: start, end: start + count}
		for n := minNode; n <= maxNode; n++ {
			reserved[n] = append(reserved[n], r)
		}

		starts[i] = start
		if start != 0 {
			item.ModifyVertexOffset(start)
		}
	}

	return starts
}

func fits(blocked []slotRange, start, end int) bool {
	for _, b := range blocked {
		if b.overlaps(start, end) {
			return false
		}
	}
	return true
}
