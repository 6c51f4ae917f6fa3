package substrate

import "errors"

// DiscoveryTopic is the pubsub channel the substrate itself uses for peer
// discovery. The node never unsubscribes from it, even on logout.
const DiscoveryTopic = "_peer-discovery._p2p._pubsub"

// ErrNoPeers is returned by directory operations when the substrate has no
// peers to ask yet. It signals a transient condition, not absence: the first
// node on an empty network hits this on every directory call.
var ErrNoPeers = errors.New("no peers in routing table")

// ErrNotFound is returned by DirGet when the key is definitively absent.
var ErrNotFound = errors.New("content not found")

// Event is one inbound gossip message, as delivered by the substrate's event
// stream.
type Event struct {
	Topic string
	Data  []byte
}

// FetchFunc answers a remote provider query for one content key.
type FetchFunc func() ([]byte, error)

// Substrate is the boundary between the peerline core and the P2P stack. The
// core consumes exactly four capabilities: the key/value directory, provider
// advertisement/discovery, request/response fetch against a specific peer,
// and topic-based publish/subscribe. Transport, routing and message
// propagation live behind this interface and are not the core's concern.
type Substrate interface {

	// LocalID returns this node's peer ID.
	LocalID() string

	// DirGet and DirPut access the shared key/value directory. DirGet returns
	// ErrNotFound for a definitively absent key and ErrNoPeers when there is
	// nobody to ask. DirPut may return ErrNoPeers when there is nobody to
	// replicate to.
	DirGet(key string) ([]byte, error)
	DirPut(key string, value []byte) error

	// Provide advertises this node as a source for key. The advertisement
	// cannot be retracted; a node that stops answering may keep being listed
	// as a stale provider.
	Provide(key string) error

	// FindProviders returns the peer IDs currently advertised as sources for
	// key, excluding the local node.
	FindProviders(key string) []string

	// Fetch sends a request for key to a specific peer and returns its raw
	// response.
	Fetch(peerID string, key string) ([]byte, error)

	// RegisterFetchFunc installs the local responder for key. Incoming Fetch
	// requests for key are answered by fn until UnregisterFetchFunc is
	// called.
	RegisterFetchFunc(key string, fn FetchFunc)
	UnregisterFetchFunc(key string)

	// Publish, Subscribe, Unsubscribe and Topics manage gossip channels.
	// Messages published on a subscribed topic by other peers are delivered
	// on the Events channel. A node does not receive its own publications.
	Publish(topic string, data []byte) error
	Subscribe(topic string)
	Unsubscribe(topic string)
	Topics() []string

	// Events returns the inbound gossip stream.
	Events() <-chan Event

	// Close permanently shuts the substrate handle down and closes the
	// Events channel.
	Close() error
}
