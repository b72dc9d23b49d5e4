package matchers

import (
	"github.com/emirpasic/gods/queues/priorityqueue"

	"hyperdiff/decompress"
)

type queued struct {
	idx    int
	height int
}

// byHeight orders higher subtrees first, then lower indices.
func byHeight(a, b interface{}) int {
	x, y := a.(queued), b.(queued)
	switch {
	case x.height > y.height:
		return -1
	case x.height < y.height:
		return 1
	case x.idx < y.idx:
		return -1
	case x.idx > y.idx:
		return 1
	}
	return 0
}

// heightQueue pops arena indices by decreasing subtree height. Subtrees
// not taller than minHeight are never queued.
type heightQueue struct {
	tree      decompress.Tree
	minHeight int
	pq        *priorityqueue.Queue
}

func newHeightQueue(t decompress.Tree, minHeight int) *heightQueue {
	q := &heightQueue{
		tree:      t,
		minHeight: minHeight,
		pq:        priorityqueue.NewWith(byHeight),
	}
	q.push(t.Root())
	return q
}

func (q *heightQueue) push(i int) {
	if h := q.tree.Height(i); h > q.minHeight {
		q.pq.Enqueue(queued{idx: i, height: h})
	}
}

func (q *heightQueue) empty() bool {
	return q.pq.Empty()
}

func (q *heightQueue) peekHeight() int {
	v, ok := q.pq.Peek()
	if !ok {
		return -1
	}
	return v.(queued).height
}

// pop removes every index of height h, in ascending index order.
func (q *heightQueue) pop(h int) []int {
	var out []int
	for {
		v, ok := q.pq.Peek()
		if !ok || v.(queued).height != h {
			return out
		}
		q.pq.Dequeue()
		out = append(out, v.(queued).idx)
	}
}

// open queues the children of i.
func (q *heightQueue) open(i int) {
	for _, c := range q.tree.Children(i) {
		q.push(c)
	}
}
