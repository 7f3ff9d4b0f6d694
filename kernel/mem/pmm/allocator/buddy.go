package allocator

const (
	// maxBuddyLevels bounds the depth of any buddy tree instance. A tree
	// with L levels manages 1<<L page frames; the backing array must be
	// statically sized since the tree is set up before any dynamic memory
	// management is available.
	maxBuddyLevels = 10

	// buddyTreeSize is the number of cells required to store a complete
	// binary tree with maxBuddyLevels levels.
	buddyTreeSize = (1 << (maxBuddyLevels + 1)) - 1
)

// nodeState describes the allocation state of a single buddy tree cell.
type nodeState uint8

const (
	// nodeUnused marks a block with no allocations inside it.
	nodeUnused nodeState = iota

	// nodeUsed marks a block that has been handed out as a whole.
	nodeUsed

	// nodeSplit marks a block with at least one free and one non-free
	// descendant.
	nodeSplit

	// nodeFull marks a block whose children are all used or full.
	nodeFull
)

// buddy implements a binary buddy tree over power-of-two runs of page
// frames. The tree is stored as a flattened complete binary tree: the root
// lives at cell 0 and covers the whole arena, the children of cell i live at
// cells 2i+1 and 2i+2 and the leaves each cover a single page frame.
//
// The tree maintains the following invariants for every internal cell:
//   - nodeFull iff both children are each used or full
//   - nodeUnused iff both children are unused
//   - nodeSplit otherwise
//
// Used cells additionally force their entire subtree to nodeUsed so that an
// allocation at an internal level claims every frame below it.
type buddy struct {
	levels uintptr
	tree   [buddyTreeSize]nodeState
}

// init prepares the tree to manage 1<<levels page frames with every frame
// initially free.
func (b *buddy) init(levels uintptr) {
	if levels > maxBuddyLevels {
		panic("buddy: requested level count exceeds the statically sized tree")
	}

	b.levels = levels
	for i := 0; i < b.size(); i++ {
		b.tree[i] = nodeUnused
	}
}

// size returns the number of tree cells used by this instance.
func (b *buddy) size() int {
	return (1 << (b.levels + 1)) - 1
}

// allocate reserves a block large enough to hold numPages page frames and
// returns the index of the first frame in the block. The request is rounded
// up to the nearest power of two. If no block of the required size is free,
// allocate returns -1.
//
// The scan is a first-fit descend-and-backtrack over the tree: free nodes on
// the path are split on the way down, and once a free node of the requested
// level is found its ancestors and descendants are updated to reflect the
// new allocation.
func (b *buddy) allocate(numPages uintptr) int {
	reqLevel := b.levelForPages(numPages)
	if reqLevel > b.levels {
		return -1
	}

	var (
		index    int
		curLevel = b.levels
	)

forward:
	for {
		// Left children live at odd indices and have an untried buddy
		// to their right.
		isLeftChild := index&1 == 1

		if curLevel != reqLevel {
			switch b.tree[index] {
			case nodeUnused:
				// Split the node and descend
				b.tree[index] = nodeSplit
				index = index*2 + 1
				curLevel--
				continue forward
			case nodeSplit:
				// Just descend
				index = index*2 + 1
				curLevel--
				continue forward
			default:
				// Used or full blocks cannot serve this request;
				// try the right buddy if we haven't already.
				if isLeftChild {
					index++
					continue forward
				}
			}
		} else {
			if b.tree[index] == nodeUnused {
				b.tree[index] = nodeUsed
				b.updateParents(parentOf(index))
				b.updateChildren(index)
				break forward
			}

			// Occupied at the matching level; check the right buddy
			// if we haven't already.
			if isLeftChild {
				index++
				continue forward
			}
		}

		// Both buddies at this position have been tried; backtrack until
		// we reach a left child with an untried right buddy.
		for {
			if index == 0 {
				return -1
			}

			index = parentOf(index)
			curLevel++
			if index&1 == 1 {
				index++
				continue forward
			}
		}
	}

	// Derive the frame offset from the node position within its level. The
	// level recorded at the match instant is required here; it cannot be
	// re-derived from the index alone.
	levelFirstIndex := (1 << (b.levels - curLevel)) - 1
	return (index - levelFirstIndex) << curLevel
}

// markUsed pins numPages consecutive page frames starting at pageOffset as
// allocated. It is used to reserve the regions that are already occupied at
// boot time (kernel image, boot info payload) and must be invoked before the
// first call to allocate.
func (b *buddy) markUsed(numPages, pageOffset uintptr) {
	lastLevelOffset := (1 << b.levels) - 1
	firstIndex := lastLevelOffset + int(pageOffset)

	if int(numPages) < 0 || firstIndex+int(numPages) > b.size() {
		panic("buddy: marked region exceeds the managed arena")
	}

	for n := 0; n < int(numPages); n++ {
		b.tree[firstIndex+n] = nodeUsed
	}

	// Re-derive ancestor states once per touched leaf. Updating only every
	// other leaf is not enough: runs that start or end on a right child
	// would leave their first or last parent stale.
	for n := 0; n < int(numPages); n++ {
		b.updateParents(parentOf(firstIndex + n))
	}
}

// free releases the block of numPages pages that begins at frame pageOffset.
// The numPages value must match the one passed to the allocate call that
// produced the block since the block level is re-derived from it. Freeing an
// offset outside the managed arena is a fatal error.
func (b *buddy) free(numPages, pageOffset uintptr) {
	reqLevel := b.levelForPages(numPages)
	if reqLevel > b.levels {
		panic("buddy: freed region exceeds the managed arena")
	}

	// Infer the tree cell from the block level and the frame offset.
	levelOffset := int(pageOffset >> reqLevel)
	index := (1 << (b.levels - reqLevel)) - 1 + levelOffset
	if levelOffset >= 1<<(b.levels-reqLevel) {
		panic("buddy: freed offset is outside the managed arena")
	}

	b.freeAndCombine(index)
	b.updateParents(parentOf(index))
	b.updateChildren(index)
}

// freeAndCombine marks the cell at index as unused and walks up the tree
// coalescing the freed block with its buddy whenever the buddy is also
// unused.
func (b *buddy) freeAndCombine(index int) {
	b.tree[index] = nodeUnused

	// We are already at the top of the tree, we're done
	if index == 0 {
		return
	}

	var buddyIndex int
	if index&1 == 1 {
		buddyIndex = index + 1
	} else {
		buddyIndex = index - 1
	}

	if b.tree[buddyIndex] == nodeUnused {
		b.freeAndCombine(parentOf(index))
	}
}

// updateParents re-derives the state of every ancestor of the cell at index
// from its two children, applying the tree invariants.
func (b *buddy) updateParents(index int) {
	for ; index >= 0; index = parentOf(index) {
		var (
			left  = b.tree[index*2+1]
			right = b.tree[index*2+2]

			leftOccupied  = left == nodeFull || left == nodeUsed
			rightOccupied = right == nodeFull || right == nodeUsed
		)

		switch {
		case leftOccupied && rightOccupied:
			b.tree[index] = nodeFull
		case left == nodeUnused && right == nodeUnused:
			b.tree[index] = nodeUnused
		default:
			b.tree[index] = nodeSplit
		}

		if index == 0 {
			return
		}
	}
}

// updateChildren forces every descendant of the cell at index to the same
// state as the cell itself. This keeps used subtrees uniformly used after an
// allocation at an internal level implicitly claims all frames below it.
func (b *buddy) updateChildren(index int) {
	var (
		left  = index*2 + 1
		right = index*2 + 2
	)

	if left > b.size()-1 || right > b.size()-1 {
		return
	}

	b.tree[left] = b.tree[index]
	b.updateChildren(left)
	b.tree[right] = b.tree[index]
	b.updateChildren(right)
}

// levelForPages maps a page count to the tree level whose blocks are just
// large enough to hold it. Requests for zero pages are treated as requests
// for a single page.
func (b *buddy) levelForPages(numPages uintptr) uintptr {
	if numPages == 0 {
		numPages = 1
	}

	return log2(nextPowerOfTwo(numPages))
}

// parentOf returns the index of the parent cell, or -1 for the root.
func parentOf(index int) int {
	return (index+1)/2 - 1
}

// nextPowerOfTwo rounds v up to the nearest power of two.
func nextPowerOfTwo(v uintptr) uintptr {
	next := uintptr(1)
	for next < v {
		next <<= 1
	}

	return next
}

// log2 returns the position of the most significant set bit of v.
func log2(v uintptr) uintptr {
	var exp uintptr
	for v >>= 1; v > 0; v >>= 1 {
		exp++
	}

	return exp
}
