package util

import (
	"container/heap"
	"time"
)

// --------------------------------------------------------------------------
// Deadline Heap
// --------------------------------------------------------------------------

type deadline struct {
	id    uint64
	at    int64 // unix nanos
	index int
}

// Deadlines is a min-heap of request deadlines with access by request id.
// Push/Remove/PopExpired are O(log n), Contains is O(1).
//
// Deadlines is not safe for concurrent use.
type Deadlines struct {
	items []*deadline
	byID  map[uint64]*deadline
}

// NewDeadlines creates an empty deadline heap.
func NewDeadlines() *Deadlines {
	return &Deadlines{byID: make(map[uint64]*deadline)}
}

// heap.Interface, do not call directly

func (d *Deadlines) Len() int           { return len(d.items) }
func (d *Deadlines) Less(i, j int) bool { return d.items[i].at < d.items[j].at }
func (d *Deadlines) Swap(i, j int) {
	d.items[i], d.items[j] = d.items[j], d.items[i]
	d.items[i].index = i
	d.items[j].index = j
}

func (d *Deadlines) Push(x any) {
	item := x.(*deadline)
	item.index = len(d.items)
	d.items = append(d.items, item)
	d.byID[item.id] = item
}

func (d *Deadlines) Pop() any {
	old := d.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	d.items = old[:n-1]
	delete(d.byID, item.id)
	return item
}

// Set registers (or moves) the deadline of a request.
func (d *Deadlines) Set(id uint64, at time.Time) {
	if item, ok := d.byID[id]; ok {
		item.at = at.UnixNano()
		heap.Fix(d, item.index)
		return
	}
	heap.Push(d, &deadline{id: id, at: at.UnixNano()})
}

// Remove drops the deadline of a request. It reports whether the request was known.
func (d *Deadlines) Remove(id uint64) bool {
	item, ok := d.byID[id]
	if !ok {
		return false
	}
	heap.Remove(d, item.index)
	return true
}

// Contains reports whether a deadline is registered for the request.
func (d *Deadlines) Contains(id uint64) bool {
	_, ok := d.byID[id]
	return ok
}

// Next returns the earliest deadline.
func (d *Deadlines) Next() (time.Time, bool) {
	if len(d.items) == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, d.items[0].at), true
}

// PopExpired removes and returns all requests whose deadline is not after now,
// earliest first.
func (d *Deadlines) PopExpired(now time.Time) []uint64 {
	var ids []uint64
	limit := now.UnixNano()
	for len(d.items) > 0 && d.items[0].at <= limit {
		ids = append(ids, heap.Pop(d).(*deadline).id)
	}
	return ids
}
