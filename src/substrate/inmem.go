package substrate

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// eventBuffer is the size of each member's inbound event channel. Events
// published while the buffer is full are dropped, which is consistent with
// the at-most-once delivery the core assumes from gossip.
const eventBuffer = 256

// InmemNetwork joins multiple in-memory substrate handles into one
// process-local network. It implements the shared directory, the provider
// table and pubsub fan-out, to allow multi-node behaviour to be tested
// without going over a network.
type InmemNetwork struct {
	sync.RWMutex
	directory map[string][]byte
	providers map[string][]string
	members   map[string]*InmemSubstrate
}

// NewInmemNetwork ...
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		directory: make(map[string][]byte),
		providers: make(map[string][]string),
		members:   make(map[string]*InmemSubstrate),
	}
}

// Join creates a new substrate handle attached to this network. If id is
// empty a random one is generated.
func (n *InmemNetwork) Join(id string) *InmemSubstrate {
	if id == "" {
		id = uuid.New().String()
	}

	s := &InmemSubstrate{
		id:         id,
		net:        n,
		fetchFuncs: make(map[string]FetchFunc),
		topics:     map[string]bool{DiscoveryTopic: true},
		eventCh:    make(chan Event, eventBuffer),
	}

	n.Lock()
	n.members[id] = s
	n.Unlock()

	return s
}

// alone reports whether id is the only member of the network.
func (n *InmemNetwork) alone(id string) bool {
	n.RLock()
	defer n.RUnlock()

	_, ok := n.members[id]
	return ok && len(n.members) == 1
}

// InmemSubstrate implements the Substrate interface against an InmemNetwork.
type InmemSubstrate struct {
	sync.RWMutex
	id         string
	net        *InmemNetwork
	fetchFuncs map[string]FetchFunc
	topics     map[string]bool
	eventCh    chan Event
	closed     bool
}

// LocalID implements the Substrate interface.
func (s *InmemSubstrate) LocalID() string {
	return s.id
}

// DirGet implements the Substrate interface.
func (s *InmemSubstrate) DirGet(key string) ([]byte, error) {
	s.net.RLock()
	value, ok := s.net.directory[key]
	s.net.RUnlock()

	if ok {
		return value, nil
	}

	if s.net.alone(s.id) {
		return nil, ErrNoPeers
	}

	return nil, ErrNotFound
}

// DirPut implements the Substrate interface. The value is always written to
// the local replica; ErrNoPeers is returned when there is nobody to
// replicate it to, so the caller can decide whether that matters.
func (s *InmemSubstrate) DirPut(key string, value []byte) error {
	s.net.Lock()
	s.net.directory[key] = value
	s.net.Unlock()

	if s.net.alone(s.id) {
		return ErrNoPeers
	}

	return nil
}

// Provide implements the Substrate interface. Advertisements accumulate and
// are never retracted, mirroring the real substrate's limitation.
func (s *InmemSubstrate) Provide(key string) error {
	s.net.Lock()
	defer s.net.Unlock()

	for _, id := range s.net.providers[key] {
		if id == s.id {
			return nil
		}
	}
	s.net.providers[key] = append(s.net.providers[key], s.id)

	return nil
}

// FindProviders implements the Substrate interface.
func (s *InmemSubstrate) FindProviders(key string) []string {
	s.net.RLock()
	defer s.net.RUnlock()

	res := []string{}
	for _, id := range s.net.providers[key] {
		if id != s.id {
			res = append(res, id)
		}
	}

	return res
}

// Fetch implements the Substrate interface.
func (s *InmemSubstrate) Fetch(peerID string, key string) ([]byte, error) {
	s.net.RLock()
	peer, ok := s.net.members[peerID]
	s.net.RUnlock()

	if !ok {
		return nil, fmt.Errorf("failed to connect to peer: %v", peerID)
	}

	peer.RLock()
	fn, ok := peer.fetchFuncs[key]
	peer.RUnlock()

	if !ok {
		return nil, fmt.Errorf("peer %v has no responder for %v", peerID, key)
	}

	return fn()
}

// RegisterFetchFunc implements the Substrate interface.
func (s *InmemSubstrate) RegisterFetchFunc(key string, fn FetchFunc) {
	s.Lock()
	defer s.Unlock()

	s.fetchFuncs[key] = fn
}

// UnregisterFetchFunc implements the Substrate interface.
func (s *InmemSubstrate) UnregisterFetchFunc(key string) {
	s.Lock()
	defer s.Unlock()

	delete(s.fetchFuncs, key)
}

// Publish implements the Substrate interface. The message is delivered to
// every subscribed member except the publisher.
func (s *InmemSubstrate) Publish(topic string, data []byte) error {
	s.net.RLock()
	defer s.net.RUnlock()

	for id, member := range s.net.members {
		if id == s.id {
			continue
		}
		member.deliver(Event{Topic: topic, Data: data})
	}

	return nil
}

func (s *InmemSubstrate) deliver(evt Event) {
	s.RLock()
	defer s.RUnlock()

	if s.closed || !s.topics[evt.Topic] {
		return
	}

	select {
	case s.eventCh <- evt:
	default:
		// slow consumer, drop
	}
}

// Subscribe implements the Substrate interface.
func (s *InmemSubstrate) Subscribe(topic string) {
	s.Lock()
	defer s.Unlock()

	s.topics[topic] = true
}

// Unsubscribe implements the Substrate interface.
func (s *InmemSubstrate) Unsubscribe(topic string) {
	s.Lock()
	defer s.Unlock()

	delete(s.topics, topic)
}

// Topics implements the Substrate interface.
func (s *InmemSubstrate) Topics() []string {
	s.RLock()
	defer s.RUnlock()

	res := []string{}
	for topic := range s.topics {
		res = append(res, topic)
	}

	return res
}

// Events implements the Substrate interface.
func (s *InmemSubstrate) Events() <-chan Event {
	return s.eventCh
}

// Close implements the Substrate interface.
func (s *InmemSubstrate) Close() error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return nil
	}
	s.closed = true
	s.Unlock()

	s.net.Lock()
	delete(s.net.members, s.id)
	s.net.Unlock()

	close(s.eventCh)

	return nil
}
