package sender

import (
	"sync"

	"github.com/farwydi/actionpipe"
)

type NewQueueFunc = func(event actionpipe.Event) (actionpipe.Queue, error)

func NewPool(newQueue NewQueueFunc) actionpipe.Pool {
	return &Pool{
		newQueue:  newQueue,
		openQueue: map[string]actionpipe.Queue{},
	}
}

// Pool routes events to one queue per insert statement.
type Pool struct {
	newQueue  NewQueueFunc
	ofsMx     sync.Mutex
	openQueue map[string]actionpipe.Queue
}

func (p *Pool) getQueue(event actionpipe.Event) (actionpipe.Queue, error) {
	var err error
	queue, isInit := p.openQueue[event.SQL()]
	if !isInit {
		queue, err = p.newQueue(event)
		if err != nil {
			return nil, err
		}

		p.openQueue[event.SQL()] = queue
	}

	return queue, nil
}

func (p *Pool) Append(events []actionpipe.Event) error {
	p.ofsMx.Lock()
	defer p.ofsMx.Unlock()

	for _, event := range events {
		queue, err := p.getQueue(event)
		if err != nil {
			return err
		}

		err = queue.Push(event)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Pool) Push(event actionpipe.Event) (err error) {
	p.ofsMx.Lock()
	defer p.ofsMx.Unlock()

	queue, err := p.getQueue(event)
	if err != nil {
		return err
	}

	return queue.Push(event)
}

func (p *Pool) Eject(limit int) (events []actionpipe.Event, err error) {
	p.ofsMx.Lock()
	defer p.ofsMx.Unlock()

	maxLimit := 0
	for _, queue := range p.openQueue {
		maxLimit += queue.Len()
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	if limit < 0 {
		limit = maxLimit
	}

	if limit == 0 {
		return nil, nil
	}

	events = make([]actionpipe.Event, 0, limit)
	for _, queue := range p.openQueue {
		ejected, err := queue.Eject(limit - len(events))
		if err != nil {
			return nil, err
		}

		for _, e := range ejected {
			if e != nil {
				events = append(events, e.(actionpipe.Event))
			}
		}

		if len(events) >= limit {
			return events, nil
		}
	}
	return events, nil
}
