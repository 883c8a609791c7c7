package phone

import "sync"

type NotificationKind int

const (
	StatusChanged NotificationKind = iota + 1
	OnlineChanged
	IncomingCall
	CallEnded
	DisplayChanged
)

func (k NotificationKind) String() string {
	switch k {
	case StatusChanged:
		return "status-changed"
	case OnlineChanged:
		return "online-changed"
	case IncomingCall:
		return "incoming-call"
	case CallEnded:
		return "call-ended"
	case DisplayChanged:
		return "display-changed"
	}
	return "unknown"
}

// Notification is one presentation-layer update. Only the fields
// relevant to Kind are set.
type Notification struct {
	Kind   NotificationKind
	Status Status
	Online bool
	// Name and Number describe the caller on IncomingCall.
	Name   string
	Number string
	// Text is the peer display on DisplayChanged.
	Text string
}

// subscriber hands notifications to one consumer in order. publish never
// blocks: the queue grows until the consumer catches up.
type subscriber struct {
	mu    sync.Mutex
	queue []Notification
	wake  chan struct{}
	out   chan Notification
	done  chan struct{}
	once  sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan Notification),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscriber) publish(n Notification) {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, n := range batch {
			select {
			case s.out <- n:
			case <-s.done:
				return
			}
		}
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func (h *hub) subscribe() (<-chan Notification, func()) {
	s := newSubscriber()
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[*subscriber]struct{})
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s.out, func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		s.stop()
	}
}

func (h *hub) publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.publish(n)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.stop()
	}
	h.subs = nil
}
