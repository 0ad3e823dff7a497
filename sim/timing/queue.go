package timing

import "container/heap"

// eventQueue orders events by time. Events scheduled for the same cycle come
// out in the order they were scheduled, which keeps runs reproducible.
type eventQueue struct {
	events eventHeap
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.events = make([]*ScheduledEvent, 0)
	heap.Init(&q.events)

	return q
}

func (q *eventQueue) Push(evt *ScheduledEvent) {
	heap.Push(&q.events, evt)
}

func (q *eventQueue) Pop() *ScheduledEvent {
	if q.events.Len() == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*ScheduledEvent)
}

func (q *eventQueue) Peek() *ScheduledEvent {
	if q.events.Len() == 0 {
		return nil
	}

	return q.events[0]
}

func (q *eventQueue) Len() int {
	return q.events.Len()
}

type eventHeap []*ScheduledEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*ScheduledEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return evt
}
