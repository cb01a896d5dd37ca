package session

import (
	"sync"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
)

// dispatcher fans session snapshots out to subscribers. Snapshots are
// delivered to every subscriber in the order the transitions occurred; a slow
// subscriber queues behind its own channel and never blocks the controller or
// its peers.
type dispatcher struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []domain.Snapshot
	done  chan struct{}
	ch    chan domain.Snapshot
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[int]*subscriber)}
}

// subscribe registers a new subscriber primed with the current snapshot and
// returns its channel plus an unsubscribe func. The channel is closed once
// the subscription ends.
func (d *dispatcher) subscribe(current domain.Snapshot) (<-chan domain.Snapshot, func()) {
	sub := &subscriber{
		queue: []domain.Snapshot{current},
		done:  make(chan struct{}),
		ch:    make(chan domain.Snapshot, 1),
	}
	sub.cond = sync.NewCond(&sub.mu)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := d.nextID
	d.nextID++
	d.subs[id] = sub
	d.mu.Unlock()

	go sub.pump()

	unsubscribe := func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
		sub.stop()
	}

	return sub.ch, unsubscribe
}

// publish appends the snapshot to every subscriber queue. Queues are
// unbounded so no intermediate state is ever coalesced away.
func (d *dispatcher) publish(snap domain.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, sub := range d.subs {
		sub.enqueue(snap)
	}
}

// shutdown stops all subscribers and rejects future publishes.
func (d *dispatcher) shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := make([]*subscriber, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.subs = map[int]*subscriber{}
	d.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) enqueue(snap domain.Snapshot) {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		s.queue = append(s.queue, snap)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) stop() {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// pump drains the queue into the channel in order. A stopped subscription
// unblocks any pending send so the goroutine never leaks behind a receiver
// that has gone away.
func (s *subscriber) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped() {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- next:
		case <-s.done:
			return
		}
	}
}
