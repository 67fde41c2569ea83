package memory

import (
	"container/list"
	"encoding"
	"sync"
)

// NewQueue returns an unbounded in-memory event spool. It never fails; it is
// the fallback when the file spool cannot be written.
func NewQueue() *Queue {
	return &Queue{
		buffer: list.New(),
	}
}

type Queue struct {
	buffer *list.List
	mx     sync.Mutex
}

func (m *Queue) Eject(limit int) (events []interface{}, err error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if limit > m.buffer.Len() {
		limit = m.buffer.Len()
	}

	if limit < 0 {
		limit = m.buffer.Len()
	}

	if limit == 0 {
		return nil, nil
	}

	events = make([]interface{}, 0, limit)
	it := 0
	for e := m.buffer.Front(); e != nil && it < limit; {
		cur := e
		e = e.Next()
		events = append(events, m.buffer.Remove(cur))
		it++
	}
	return events, nil
}

func (m *Queue) Push(event encoding.BinaryMarshaler) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.buffer.PushBack(event)
	return nil
}

func (m *Queue) Len() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.buffer.Len()
}
