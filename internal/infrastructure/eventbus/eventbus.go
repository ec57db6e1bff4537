// Package eventbus provides the in-process topic broker that fans conversation
// events out to live subscribers. It is constructed once at startup and
// injected wherever events are published or consumed.
package eventbus

import "sync"

// Bus delivers every published payload to each subscription registered on the
// topic at publish time. There is no replay: a subscription only sees payloads
// published after it was created.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	closed bool
}

func New() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
	}
}

// Publish hands the payload to every current subscriber of the topic. It never
// blocks the caller: each subscription queues internally until its consumer
// catches up.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		s.push(payload)
	}
}

// Subscribe registers a new subscription on the topic. The caller must Close
// it when done.
func (b *Bus) Subscribe(topic string) *Subscription {
	s := &Subscription{
		bus:   b,
		topic: topic,
		out:   make(chan interface{}),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.once.Do(func() { close(s.done) })
		close(s.out)
		return s
	}
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	go s.pump()
	return s
}

// Close tears the bus down, closing every active subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.topic]
	for i, sub := range subs {
		if sub == s {
			b.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subscription is one subscriber's ordered view of a topic. Payloads are held
// in an internal queue until the consumer drains Events(), so a slow consumer
// never stalls the publisher or its sibling subscribers.
type Subscription struct {
	bus   *Bus
	topic string

	mu    sync.Mutex
	queue []interface{}

	out  chan interface{}
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Events returns the delivery channel. It is closed once the subscription is
// closed; payloads already queued but not yet consumed are discarded.
func (s *Subscription) Events() <-chan interface{} {
	return s.out
}

// Close unsubscribes. It is idempotent and safe to call at any time, including
// concurrently with Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}

func (s *Subscription) push(payload interface{}) {
	select {
	case <-s.done:
		return
	default:
	}

	s.mu.Lock()
	s.queue = append(s.queue, payload)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) > 0 {
			payload := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- payload:
			case <-s.done:
				return
			}

			s.mu.Lock()
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
