package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Memory is an in-process delayed queue backed by a min-heap on DueAt.
// Its contents do not survive a restart; callers re-hydrate it from the
// database on startup.
type Memory struct {
	mu     sync.Mutex
	items  itemHeap
	index  map[string]*heapEntry
	wake   chan struct{}
	closed bool
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		index: make(map[string]*heapEntry),
		wake:  make(chan struct{}, 1),
		now:   time.Now,
	}
}

func (m *Memory) Push(_ context.Context, item Item) error {
	if item.ID == "" {
		return ErrEmptyID
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if e, ok := m.index[item.ID]; ok {
		e.item.DueAt = item.DueAt
		heap.Fix(&m.items, e.pos)
	} else {
		e := &heapEntry{item: item}
		heap.Push(&m.items, e)
		m.index[item.ID] = e
	}
	m.signalLocked()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Pop(ctx context.Context) (Item, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Item{}, ErrClosed
		}
		var timer *time.Timer
		if len(m.items) > 0 {
			head := m.items[0]
			wait := head.item.DueAt.Sub(m.now())
			if wait <= 0 {
				heap.Pop(&m.items)
				delete(m.index, head.item.ID)
				m.mu.Unlock()
				return head.item, nil
			}
			timer = time.NewTimer(wait)
		}
		m.mu.Unlock()

		if timer == nil {
			select {
			case <-ctx.Done():
				return Item{}, ctx.Err()
			case <-m.wake:
			}
			continue
		}
		select {
		case <-ctx.Done():
			timer.Stop()
			return Item{}, ctx.Err()
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	// Wake every blocked Pop; they observe closed and return.
	close(m.wake)
	return nil
}

// signalLocked wakes a blocked Pop so it can re-evaluate the head of the heap.
func (m *Memory) signalLocked() {
	if m.closed {
		return
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

type heapEntry struct {
	item Item
	pos  int
}

type itemHeap []*heapEntry

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool { return h[i].item.DueAt.Before(h[j].item.DueAt) }

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *itemHeap) Push(x any) {
	e := x.(*heapEntry)
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
