package messaging

// fifo is a payload queue that drops its oldest entry when full.
// A limit of 0 means unbounded. Callers hold Runtime.mu.
type fifo struct {
	items   [][]byte
	limit   int
	dropped uint64
}

func newFIFO(limit int) *fifo {
	return &fifo{limit: limit}
}

func (q *fifo) push(payload []byte) {
	if q.limit > 0 && len(q.items) >= q.limit {
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, payload)
}

func (q *fifo) pop() ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return head, true
}

func (q *fifo) len() int {
	return len(q.items)
}
