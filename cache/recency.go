package cache

const nilNode int32 = -1

type node struct {
	key  string
	rec  Record
	prev int32
	next int32
}

// recency is an intrusive doubly-linked list over an arena of nodes plus a
// key index. head is the least recently touched node, tail the most recent.
// Freed slots are chained through next and reused before the arena grows.
type recency struct {
	nodes []node
	index map[string]int32
	head  int32
	tail  int32
	free  int32
}

func newRecency(capacity int) recency {
	hint := capacity
	if hint > 4096 {
		hint = 4096
	}
	return recency{
		nodes: make([]node, 0, hint),
		index: make(map[string]int32, hint),
		head:  nilNode,
		tail:  nilNode,
		free:  nilNode,
	}
}

func (l *recency) len() int { return len(l.index) }

func (l *recency) lookup(key string) (int32, bool) {
	idx, ok := l.index[key]
	return idx, ok
}

func (l *recency) at(idx int32) *node { return &l.nodes[idx] }

// pushBack inserts key at the most recent position.
func (l *recency) pushBack(key string, rec Record) int32 {
	if _, dup := l.index[key]; dup {
		panic("cache: duplicate key inserted into recency list")
	}
	var idx int32
	if l.free != nilNode {
		idx = l.free
		l.free = l.nodes[idx].next
	} else {
		l.nodes = append(l.nodes, node{})
		idx = int32(len(l.nodes) - 1)
	}
	l.nodes[idx] = node{key: key, rec: rec, prev: l.tail, next: nilNode}
	if l.tail != nilNode {
		l.nodes[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.index[key] = idx
	return idx
}

func (l *recency) unlink(idx int32) {
	n := &l.nodes[idx]
	if n.prev != nilNode {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nilNode {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nilNode, nilNode
}

// remove unlinks idx and returns its slot to the free chain.
func (l *recency) remove(idx int32) {
	l.unlink(idx)
	delete(l.index, l.nodes[idx].key)
	l.nodes[idx] = node{prev: nilNode, next: l.free}
	l.free = idx
}

// moveToBack promotes idx to the most recent position.
func (l *recency) moveToBack(idx int32) {
	if l.tail == idx {
		return
	}
	l.unlink(idx)
	n := &l.nodes[idx]
	n.prev = l.tail
	l.nodes[l.tail].next = idx
	l.tail = idx
}

// front returns the least recently touched node, or nilNode when empty.
func (l *recency) front() int32 { return l.head }

func (l *recency) reset(capacity int) { *l = newRecency(capacity) }

// each walks nodes from least to most recently touched.
func (l *recency) each(fn func(*node) bool) {
	for idx := l.head; idx != nilNode; idx = l.nodes[idx].next {
		if !fn(&l.nodes[idx]) {
			return
		}
	}
}
